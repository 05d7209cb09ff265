package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/service"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/response"
	"github.com/pharmaelevate/portal-api/pkg/storage"
)

type uploadService interface {
	Commit(ctx context.Context, actor *models.User, file service.UploadFile, meta models.UploadMeta) (*models.UploadResult, error)
	Sign(ctx context.Context, actor *models.User, req models.SignUploadRequest) (*models.SignUploadResponse, error)
	Complete(ctx context.Context, actor *models.User, req models.CompleteUploadRequest) (*models.UploadResult, error)
	ReceiveDirect(ctx context.Context, token string, body io.Reader) (*storage.Object, error)
}

// multipartOverhead leaves room for form fields around the file part.
const multipartOverhead = 1 << 20

// UploadHandler accepts note and image uploads.
type UploadHandler struct {
	service  uploadService
	maxBytes int64
}

// NewUploadHandler caps request bodies at maxBytes, the largest per-kind limit.
func NewUploadHandler(svc uploadService, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &UploadHandler{service: svc, maxBytes: maxBytes}
}

// Upload godoc
// @Summary Upload a note or image
// @Description Multipart upload; the file is validated, stored and recorded. Non-admin uploads wait for moderation.
// @Tags Uploads
// @Accept mpfd
// @Produce json
// @Param file formData file true "File"
// @Param type formData string true "note or image"
// @Param title formData string false "Note title"
// @Param subject formData string false "Note subject"
// @Param semester formData int false "Note semester"
// @Param description formData string false "Note description"
// @Param albumId formData string false "Image album"
// @Param caption formData string false "Image caption"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Security BearerAuth
// @Router /upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	actor := accountFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, h.formError(err, "file is required"))
		return
	}
	var meta models.UploadMeta
	if err := c.ShouldBind(&meta); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload fields"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read file"))
		return
	}
	defer file.Close()

	result, err := h.service.Commit(c.Request.Context(), actor, service.UploadFile{Name: header.Filename, Size: header.Size, Body: file}, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, uploadMessage(result), result)
}

// Sign godoc
// @Summary Request a direct upload URL
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body models.SignUploadRequest true "File description"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /upload/sign [post]
func (h *UploadHandler) Sign(c *gin.Context) {
	actor := accountFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.SignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign payload"))
		return
	}
	res, err := h.service.Sign(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Complete godoc
// @Summary Record a direct upload
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body models.CompleteUploadRequest true "Ticket and metadata"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /upload/complete [post]
func (h *UploadHandler) Complete(c *gin.Context) {
	actor := accountFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid complete payload"))
		return
	}
	result, err := h.service.Complete(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, uploadMessage(result), result)
}

// Direct godoc
// @Summary Signed upload receiver for the local storage driver
// @Tags Uploads
// @Accept octet-stream
// @Produce json
// @Param token query string true "Upload token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /upload/direct [put]
func (h *UploadHandler) Direct(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	obj, err := h.service.ReceiveDirect(c.Request.Context(), token, body)
	if err != nil {
		response.Error(c, h.formError(err, ""))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"key": obj.Key, "size": obj.Size}, nil)
}

// formError maps an exhausted body limit onto FILE_TOO_LARGE.
func (h *UploadHandler) formError(err error, fallback string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return appErrors.WithMeta(appErrors.ErrFileTooLarge, map[string]interface{}{"maxBytes": h.maxBytes})
	}
	if fallback == "" {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, fallback)
}

func uploadMessage(result *models.UploadResult) string {
	if result != nil && result.Status == models.StatusPending {
		return "upload received and awaiting review"
	}
	return "upload published"
}
