package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type noteLibraryRepository interface {
	List(ctx context.Context, filter models.NoteFilter) ([]models.Note, int, error)
	IncrementDownloads(ctx context.Context, id string) (string, error)
}

// NoteList is a page of approved notes. It is also the cached payload.
type NoteList struct {
	Items      []models.Note      `json:"items"`
	Pagination *models.Pagination `json:"pagination"`
}

// LibraryService serves the approved study library.
type LibraryService struct {
	notes  noteLibraryRepository
	cache  *CacheService
	logger *zap.Logger
}

// NewLibraryService constructs a LibraryService.
func NewLibraryService(notes noteLibraryRepository, cache *CacheService, logger *zap.Logger) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryService{notes: notes, cache: cache, logger: logger}
}

// ListNotes returns approved notes only, whatever status the caller asked for.
func (s *LibraryService) ListNotes(ctx context.Context, filter models.NoteFilter) (*NoteList, error) {
	if filter.Semester < 0 || filter.Semester > 8 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be between 1 and 8")
	}
	filter.Status = models.StatusApproved
	filter.Subject = strings.TrimSpace(filter.Subject)
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	key := NotesKey(filter)
	var cached NoteList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	notes, total, err := s.notes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notes")
	}
	if notes == nil {
		notes = []models.Note{}
	}
	result := &NoteList{Items: notes, Pagination: models.NewPagination(filter.Page, filter.PageSize, total)}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// Download counts a download of an approved note and returns its file URL.
func (s *LibraryService) Download(ctx context.Context, id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "note not found")
	}
	url, err := s.notes.IncrementDownloads(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", appErrors.Clone(appErrors.ErrNotFound, "note not found")
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record download")
	}
	return url, nil
}
