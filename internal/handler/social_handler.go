package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/response"
)

type socialAuthService interface {
	SocialSignIn(ctx context.Context, profile models.SocialProfile) (*models.LoginResponse, error)
}

// SocialHandler runs the Google OAuth round trip through goth.
type SocialHandler struct {
	service  socialAuthService
	begin    func(w http.ResponseWriter, r *http.Request)
	complete func(w http.ResponseWriter, r *http.Request) (goth.User, error)
}

// NewSocialHandler uses gothic's session backed flow.
func NewSocialHandler(svc socialAuthService) *SocialHandler {
	return &SocialHandler{
		service:  svc,
		begin:    gothic.BeginAuthHandler,
		complete: gothic.CompleteUserAuth,
	}
}

// Begin godoc
// @Summary Start Google sign in
// @Tags Authentication
// @Success 307
// @Router /auth/google [get]
func (h *SocialHandler) Begin(c *gin.Context) {
	h.begin(c.Writer, gothic.GetContextWithProvider(c.Request, string(models.ProviderGoogle)))
}

// Callback godoc
// @Summary Finish Google sign in
// @Description Exchanges the provider callback for a portal session
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/google/callback [get]
func (h *SocialHandler) Callback(c *gin.Context) {
	user, err := h.complete(c.Writer, gothic.GetContextWithProvider(c.Request, string(models.ProviderGoogle)))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "google sign in failed"))
		return
	}

	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	res, err := h.service.SocialSignIn(c.Request.Context(), models.SocialProfile{
		Provider:  models.ProviderGoogle,
		Email:     user.Email,
		Name:      name,
		AvatarURL: user.AvatarURL,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
