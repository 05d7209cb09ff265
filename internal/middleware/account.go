package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/response"
)

// ContextAccountKey is the gin context key storing the live account.
const ContextAccountKey = "currentAccount"

// AccountLoader returns the caller's current account or an error when the
// account may no longer act.
type AccountLoader interface {
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
}

// ActiveUser reloads the account behind the token so role changes and blocks
// apply on the next request. It must run after JWT.
func ActiveUser(loader AccountLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		user, err := loader.CurrentUser(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextAccountKey, user)
		c.Next()
	}
}

// Account returns the account loaded by ActiveUser, or nil.
func Account(c *gin.Context) *models.User {
	value, exists := c.Get(ContextAccountKey)
	if !exists {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}
