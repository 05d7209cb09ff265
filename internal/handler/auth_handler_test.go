package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/middleware"
	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type responseEnvelope struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data"`
	ErrorCode  string                 `json:"errorCode"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newJSONContext(method, target string, payload interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var body []byte
	switch v := payload.(type) {
	case nil:
	case string:
		body = []byte(v)
	default:
		body, _ = json.Marshal(v)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	c.Request = req
	return c, rec
}

type fakeAuthSrv struct {
	registerReq models.RegisterRequest
	registerRes *models.RegisterResponse
	resendErr   error
	logoutUser  string
	logoutReq   models.LogoutRequest
	loginErr    error
	me          *models.UserInfo
}

func (f *fakeAuthSrv) Register(_ context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	f.registerReq = req
	return f.registerRes, nil
}

func (f *fakeAuthSrv) Verify(context.Context, models.VerifyRequest) (*models.UserInfo, error) {
	return f.me, nil
}

func (f *fakeAuthSrv) ResendCode(context.Context, models.ResendCodeRequest) error {
	return f.resendErr
}

func (f *fakeAuthSrv) ForgotPassword(context.Context, models.ForgotPasswordRequest) error {
	return nil
}

func (f *fakeAuthSrv) ResetPassword(context.Context, models.ResetPasswordRequest) error {
	return nil
}

func (f *fakeAuthSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "access"}, nil
}

func (f *fakeAuthSrv) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{}, nil
}

func (f *fakeAuthSrv) Logout(_ context.Context, userID string, req models.LogoutRequest) error {
	f.logoutUser = userID
	f.logoutReq = req
	return nil
}

func (f *fakeAuthSrv) ChangePassword(context.Context, string, models.ChangePasswordRequest) error {
	return nil
}

func (f *fakeAuthSrv) Me(context.Context, string) (*models.UserInfo, error) {
	return f.me, nil
}

func TestAuthHandlerRegisterCapturesClient(t *testing.T) {
	srv := &fakeAuthSrv{registerRes: &models.RegisterResponse{VerificationSent: true}}
	handler := NewAuthHandler(srv)

	c, rec := newJSONContext(http.MethodPost, "/register", map[string]string{
		"email": "asha@example.com", "username": "asha", "password": "Secret123!", "name": "Asha",
	})
	handler.Register(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "asha@example.com", srv.registerReq.Email)
	assert.Equal(t, "handler-test", srv.registerReq.UserAgent)
	assert.NotEmpty(t, srv.registerReq.IP)
	envelope := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "verification code sent", envelope.Message)
	assert.Equal(t, true, envelope.Data["verificationSent"])
}

func TestAuthHandlerLoginRejectsMalformedBody(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newJSONContext(http.MethodPost, "/auth/login", "{not json")
	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).ErrorCode)
}

func TestAuthHandlerLoginPropagatesServiceError(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{loginErr: appErrors.ErrEmailNotVerified})
	c, rec := newJSONContext(http.MethodPost, "/auth/login", map[string]string{"identifier": "asha", "password": "x"})
	handler.Login(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", decodeEnvelope(t, rec).ErrorCode)
}

func TestAuthHandlerResendCodeSetsRetryAfter(t *testing.T) {
	limited := appErrors.WithMeta(appErrors.ErrRateLimited, map[string]interface{}{"retryAfterSeconds": 42})
	handler := NewAuthHandler(&fakeAuthSrv{resendErr: limited})
	c, rec := newJSONContext(http.MethodPost, "/auth/resend-code", map[string]string{"email": "asha@example.com"})
	handler.ResendCode(c)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestAuthHandlerLogoutUsesClaims(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)

	c, rec := newJSONContext(http.MethodPost, "/auth/logout", map[string]string{"refreshToken": "rt"})
	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newJSONContext(http.MethodPost, "/auth/logout", map[string]string{"refreshToken": "rt"})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})
	handler.Logout(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", srv.logoutUser)
	assert.Equal(t, "rt", srv.logoutReq.RefreshToken)
}

func TestAuthHandlerSendOTPIsGone(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newJSONContext(http.MethodPost, "/auth/send-otp", nil)
	handler.SendOTP(c)

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "DEPRECATED", decodeEnvelope(t, rec).ErrorCode)
}
