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

type galleryService interface {
	ListAlbums(ctx context.Context) ([]models.Album, error)
	ListImages(ctx context.Context, albumID string, page, pageSize int) (*service.ImageList, error)
	Like(ctx context.Context, imageID string) (int64, error)
	CreateAlbum(ctx context.Context, actor *models.User, req models.CreateAlbumRequest) (*models.Album, error)
}

// GalleryHandler serves albums and images.
type GalleryHandler struct {
	service galleryService
}

// NewGalleryHandler constructs a GalleryHandler.
func NewGalleryHandler(svc galleryService) *GalleryHandler {
	return &GalleryHandler{service: svc}
}

// ListAlbums godoc
// @Summary List albums
// @Tags Gallery
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /albums [get]
func (h *GalleryHandler) ListAlbums(c *gin.Context) {
	albums, err := h.service.ListAlbums(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, albums, nil)
}

// ListImages godoc
// @Summary List approved images in an album
// @Tags Gallery
// @Produce json
// @Param id path string true "Album ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /albums/{id}/images [get]
func (h *GalleryHandler) ListImages(c *gin.Context) {
	list, err := h.service.ListImages(c.Request.Context(), c.Param("id"), parseQueryInt(c, "page", 1), parseQueryInt(c, "pageSize", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list.Items, list.Pagination)
}

// Like godoc
// @Summary Like an image
// @Tags Gallery
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /images/{id}/like [post]
func (h *GalleryHandler) Like(c *gin.Context) {
	likes, err := h.service.Like(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "likes": likes}, nil)
}

// CreateAlbum godoc
// @Summary Create an album
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreateAlbumRequest true "Album"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/albums [post]
func (h *GalleryHandler) CreateAlbum(c *gin.Context) {
	var req models.CreateAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid album payload"))
		return
	}
	album, err := h.service.CreateAlbum(c.Request.Context(), accountFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, album)
}
