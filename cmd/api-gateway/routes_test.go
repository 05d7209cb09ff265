package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/service"
	"github.com/pharmaelevate/portal-api/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: "/api/v1",
		Uploads:   config.UploadConfig{MaxImageBytes: 10 << 20, MaxNoteBytes: 25 << 20},
	}
}

func routeSet(r *gin.Engine) map[string]bool {
	set := map[string]bool{}
	for _, route := range r.Routes() {
		set[route.Method+" "+route.Path] = true
	}
	return set
}

func TestRouterRegistersPortalRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newRouter(routeDeps{cfg: testConfig(), metrics: service.NewMetricsService(), localFiles: t.TempDir()})
	routes := routeSet(r)

	for _, want := range []string{
		"POST /api/v1/register",
		"POST /api/v1/verify",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"POST /api/v1/auth/send-otp",
		"GET /api/v1/profile",
		"PATCH /api/v1/profile",
		"GET /api/v1/profiles/:username",
		"GET /api/v1/notes",
		"GET /api/v1/notes/:id/download",
		"GET /api/v1/albums/:id/images",
		"POST /api/v1/images/:id/like",
		"POST /api/v1/upload",
		"POST /api/v1/upload/sign",
		"POST /api/v1/upload/complete",
		"PUT /api/v1/upload/direct",
		"GET /api/v1/admin/users",
		"GET /api/v1/admin/users/export",
		"PATCH /api/v1/admin/users/:id",
		"GET /api/v1/admin/stats",
		"POST /api/v1/admin/approve",
		"GET /api/v1/admin/pending",
		"DELETE /api/v1/admin/content/:type/:id",
		"POST /api/v1/admin/albums",
		"GET /health",
		"GET /ready",
		"GET /metrics",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
	assert.False(t, routes["GET /api/v1/auth/google"], "google routes need credentials")
}

func TestRouterOptionalRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Env = config.EnvProduction
	cfg.OAuth = config.OAuthConfig{GoogleClientID: "id", GoogleClientSecret: "secret"}
	routes := routeSet(newRouter(routeDeps{cfg: cfg}))

	assert.True(t, routes["GET /api/v1/auth/google/callback"])
	assert.False(t, routes["PUT /api/v1/upload/direct"])
	assert.False(t, routes["GET /docs/*any"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newRouter(routeDeps{cfg: testConfig(), readiness: readinessChecks(func(context.Context) error { return nil }, nil)})

	for _, path := range []string{"/api/v1/profile", "/api/v1/admin/stats"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
