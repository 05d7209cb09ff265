package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/service"
	"github.com/pharmaelevate/portal-api/pkg/response"
)

type libraryService interface {
	ListNotes(ctx context.Context, filter models.NoteFilter) (*service.NoteList, error)
	Download(ctx context.Context, id string) (string, error)
}

// LibraryHandler serves the approved notes library.
type LibraryHandler struct {
	service libraryService
}

// NewLibraryHandler constructs a LibraryHandler.
func NewLibraryHandler(svc libraryService) *LibraryHandler {
	return &LibraryHandler{service: svc}
}

// List godoc
// @Summary List approved notes
// @Tags Library
// @Produce json
// @Param subject query string false "Subject"
// @Param semester query int false "Semester (1-8)"
// @Param q query string false "Search in title and description"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notes [get]
func (h *LibraryHandler) List(c *gin.Context) {
	filter := models.NoteFilter{
		Subject:  c.Query("subject"),
		Semester: parseQueryInt(c, "semester", 0),
		Search:   c.Query("q"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	list, err := h.service.ListNotes(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list.Items, list.Pagination)
}

// Download godoc
// @Summary Download a note
// @Description Counts the download and redirects to the file
// @Tags Library
// @Param id path string true "Note ID"
// @Success 302
// @Failure 404 {object} response.Envelope
// @Router /notes/{id}/download [get]
func (h *LibraryHandler) Download(c *gin.Context) {
	url, err := h.service.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}
