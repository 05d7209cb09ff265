package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pharmaelevate/portal-api/internal/middleware"
	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// accountFromContext returns the live account loaded by ActiveUser.
func accountFromContext(c *gin.Context) *models.User {
	return middleware.Account(c)
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

func parseQueryBool(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}
