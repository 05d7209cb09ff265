package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/service"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/logger"
)

type staticValidator struct {
	claims *models.JWTClaims
}

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type accountStub struct {
	user *models.User
	err  error
}

func (a accountStub) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return a.user, a.err
}

type auditSink struct {
	mu     sync.Mutex
	events []service.AuditEvent
}

func (s *auditSink) Record(event service.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	r := gin.New()
	r.GET("/me", JWT(staticValidator{claims: claims}), func(c *gin.Context) {
		assert.Equal(t, "u1", c.GetString(logger.UserIDKey))
		c.JSON(http.StatusOK, Claims(c))
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/me", "bearer good").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := gin.New()
	r.GET("/notes", OptionalJWT(staticValidator{claims: &models.JWTClaims{UserID: "u1"}}), func(c *gin.Context) {
		if Claims(c) != nil {
			c.Status(http.StatusAccepted)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/notes", "Bearer bad").Code)
	assert.Equal(t, http.StatusAccepted, serve(r, http.MethodGet, "/notes", "Bearer good").Code)
}

func TestActiveUserAndRBACUseLiveRole(t *testing.T) {
	// The token still says admin but the account was demoted.
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	live := &models.User{ID: "u1", Role: models.RoleStudent}

	r := gin.New()
	r.GET("/admin", JWT(staticValidator{claims: claims}), ActiveUser(accountStub{user: live}), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/self/:id", JWT(staticValidator{claims: claims}), ActiveUser(accountStub{user: live}), RBAC("admin", "SELF"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", "Bearer good").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/self/u1", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/self/u2", "Bearer good").Code)
}

func TestActiveUserRejectsBlockedAccount(t *testing.T) {
	r := gin.New()
	r.GET("/profile", JWT(staticValidator{claims: &models.JWTClaims{UserID: "u1"}}), ActiveUser(accountStub{err: appErrors.ErrAccountBlocked}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/profile", "Bearer good")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_BLOCKED")
}

func TestAuditRecordsSuccessOnly(t *testing.T) {
	sink := &auditSink{}
	r := gin.New()
	r.GET("/admin/users", JWT(staticValidator{claims: &models.JWTClaims{UserID: "a1"}}), Audit(sink, models.AuditUsersViewed, "user"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/admin/users?fail=1", "Bearer good")
	serve(r, http.MethodGet, "/admin/users?page=2", "Bearer good")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "a1", sink.events[0].ActorID)
	assert.Equal(t, "page=2", sink.events[0].Metadata["query"])
}
