package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/service"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/response"
)

type moderationService interface {
	Moderate(ctx context.Context, actor *models.User, req models.ModerateRequest, meta service.RequestMeta) (*models.ModerationResult, error)
	Delete(ctx context.Context, actor *models.User, rawKind, id string, meta service.RequestMeta) error
	ListPending(ctx context.Context, rawKind string, page, pageSize int) ([]models.PendingItem, *models.Pagination, error)
}

// ModerationHandler exposes the admin content queue.
type ModerationHandler struct {
	service moderationService
}

// NewModerationHandler constructs a ModerationHandler.
func NewModerationHandler(svc moderationService) *ModerationHandler {
	return &ModerationHandler{service: svc}
}

// Approve godoc
// @Summary Approve or reject pending content
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.ModerateRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/approve [post]
func (h *ModerationHandler) Approve(c *gin.Context) {
	var req models.ModerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid moderation payload"))
		return
	}
	result, err := h.service.Moderate(c.Request.Context(), accountFromContext(c), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "content " + string(result.Status)
	if !result.Changed {
		message = "content already " + string(result.Status)
	}
	response.Message(c, http.StatusOK, message, result)
}

// Pending godoc
// @Summary Moderation queue
// @Tags Admin
// @Produce json
// @Param type query string false "note or image (default note)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/pending [get]
func (h *ModerationHandler) Pending(c *gin.Context) {
	items, pagination, err := h.service.ListPending(c.Request.Context(), c.DefaultQuery("type", string(models.KindNote)), parseQueryInt(c, "page", 1), parseQueryInt(c, "pageSize", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Delete godoc
// @Summary Delete a note or image
// @Tags Admin
// @Param type path string true "note or image"
// @Param id path string true "Content ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/content/{type}/{id} [delete]
func (h *ModerationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), accountFromContext(c), c.Param("type"), c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
