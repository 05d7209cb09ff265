package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type fakeSocialSrv struct {
	profile models.SocialProfile
	err     error
}

func (f *fakeSocialSrv) SocialSignIn(_ context.Context, profile models.SocialProfile) (*models.LoginResponse, error) {
	f.profile = profile
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func newSocialHandler(srv *fakeSocialSrv, user goth.User, completeErr error) *SocialHandler {
	h := NewSocialHandler(srv)
	h.complete = func(w http.ResponseWriter, r *http.Request) (goth.User, error) {
		provider, _ := gothic.GetProviderName(r)
		user.Provider = provider
		return user, completeErr
	}
	return h
}

func TestSocialCallbackSignsIn(t *testing.T) {
	srv := &fakeSocialSrv{}
	handler := newSocialHandler(srv, goth.User{Email: "Asha@Example.com", FirstName: "Asha", LastName: "Rao", AvatarURL: "https://img.test/a.png"}, nil)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc", nil)
	handler.Callback(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ProviderGoogle, srv.profile.Provider)
	assert.Equal(t, "Asha@Example.com", srv.profile.Email)
	assert.Equal(t, "Asha Rao", srv.profile.Name)
	assert.Equal(t, "access", decodeEnvelope(t, rec).Data["accessToken"])
}

func TestSocialCallbackFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newSocialHandler(&fakeSocialSrv{}, goth.User{}, errors.New("state mismatch"))
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	handler.Callback(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "state mismatch")

	handler = newSocialHandler(&fakeSocialSrv{err: appErrors.ErrAccountBlocked}, goth.User{Email: "b@example.com"}, nil)
	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	handler.Callback(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_BLOCKED", decodeEnvelope(t, rec).ErrorCode)
}
