package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/storage"
)

type noteModerationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Note, error)
	List(ctx context.Context, filter models.NoteFilter) ([]models.Note, int, error)
	TransitionFromPending(ctx context.Context, id string, status models.ModerationStatus) (bool, error)
	Delete(ctx context.Context, id string) error
}

type imageModerationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Image, error)
	List(ctx context.Context, filter models.ImageFilter) ([]models.Image, int, error)
	TransitionFromPending(ctx context.Context, id string, status models.ModerationStatus) (bool, error)
	Delete(ctx context.Context, id string) error
}

// contentItem is the subset of a note or image moderation cares about.
type contentItem struct {
	id       string
	status   models.ModerationStatus
	publicID string
}

// ModerationService moves uploads through pending, approved and rejected.
type ModerationService struct {
	notes     noteModerationRepository
	images    imageModerationRepository
	store     storage.ObjectStore
	cache     *CacheService
	audit     AuditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewModerationService constructs a ModerationService.
func NewModerationService(notes noteModerationRepository, images imageModerationRepository, store storage.ObjectStore, cache *CacheService, audit AuditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ModerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{
		notes:     notes,
		images:    images,
		store:     store,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Moderate approves or rejects a pending note or image. Repeating the
// decision already applied is a successful no-op; reversing one is not.
func (s *ModerationService) Moderate(ctx context.Context, actor *models.User, req models.ModerateRequest, meta RequestMeta) (*models.ModerationResult, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation request")
	}
	kind, _ := models.ParseContentKind(req.Type)
	target := models.StatusApproved
	auditType := models.AuditContentApproved
	if req.Action == "reject" {
		target = models.StatusRejected
		auditType = models.AuditContentRejected
	}

	item, err := s.find(ctx, kind, req.ID)
	if err != nil {
		return nil, err
	}
	result := &models.ModerationResult{ID: item.id, Kind: kind, Status: item.status}
	if item.status == target {
		return result, nil
	}
	if item.status != models.StatusPending {
		return nil, s.invalidTransition(item.status)
	}

	changed, err := s.transition(ctx, kind, item.id, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to moderate content")
	}
	if !changed {
		// Another admin moderated it between the read and the update.
		current, err := s.find(ctx, kind, item.id)
		if err != nil {
			return nil, err
		}
		if current.status == target {
			result.Status = target
			return result, nil
		}
		return nil, s.invalidTransition(current.status)
	}

	result.Status = target
	result.Changed = true
	s.metrics.RecordModeration(kind, string(target))
	s.cache.InvalidateContent(ctx, kind)
	if s.audit != nil {
		s.audit.Record(AuditEvent{
			Type:      auditType,
			ActorID:   actor.ID,
			TargetID:  item.id,
			Resource:  string(kind),
			IPAddress: meta.IP,
			UserAgent: meta.UserAgent,
		})
	}
	return result, nil
}

// Delete removes a note or image in any state. The remote object goes first
// and is best effort; the row is removed even if storage refuses.
func (s *ModerationService) Delete(ctx context.Context, actor *models.User, rawKind, id string, meta RequestMeta) error {
	if actor == nil || !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	kind, ok := models.ParseContentKind(rawKind)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "type must be note or image")
	}
	item, err := s.find(ctx, kind, id)
	if err != nil {
		return err
	}

	remoteOK := true
	if s.store != nil && item.publicID != "" {
		if err := s.store.Destroy(ctx, item.publicID); err != nil {
			remoteOK = false
			s.logger.Warn("remote delete failed", zap.String("kind", string(kind)), zap.String("key", item.publicID), zap.Error(err))
		}
	}

	if kind == models.KindImage {
		err = s.images.Delete(ctx, item.id)
	} else {
		err = s.notes.Delete(ctx, item.id)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content")
	}

	s.metrics.RecordModeration(kind, "deleted")
	s.cache.InvalidateContent(ctx, kind)
	if s.audit != nil {
		s.audit.Record(AuditEvent{
			Type:      models.AuditContentDeleted,
			ActorID:   actor.ID,
			TargetID:  item.id,
			Resource:  string(kind),
			IPAddress: meta.IP,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]interface{}{"previousStatus": string(item.status), "remoteDeleted": remoteOK},
		})
	}
	return nil
}

// ListPending returns the moderation queue for one kind, oldest uploads last.
func (s *ModerationService) ListPending(ctx context.Context, rawKind string, page, pageSize int) ([]models.PendingItem, *models.Pagination, error) {
	kind, ok := models.ParseContentKind(rawKind)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "type must be note or image")
	}
	page, pageSize = models.NormalizePage(page, pageSize)

	var (
		items []models.PendingItem
		total int
	)
	if kind == models.KindImage {
		images, count, err := s.images.List(ctx, models.ImageFilter{Status: models.StatusPending, Page: page, PageSize: pageSize})
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending images")
		}
		total = count
		items = make([]models.PendingItem, 0, len(images))
		for _, img := range images {
			items = append(items, models.PendingItem{
				ID:         img.ID,
				Kind:       models.KindImage,
				Title:      img.Caption,
				URL:        img.URL,
				UploadedBy: img.UploadedBy,
				Uploader:   img.Uploader,
				CreatedAt:  img.CreatedAt,
			})
		}
	} else {
		notes, count, err := s.notes.List(ctx, models.NoteFilter{Status: models.StatusPending, Page: page, PageSize: pageSize})
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending notes")
		}
		total = count
		items = make([]models.PendingItem, 0, len(notes))
		for _, n := range notes {
			items = append(items, models.PendingItem{
				ID:         n.ID,
				Kind:       models.KindNote,
				Title:      n.Title,
				URL:        n.FileURL,
				UploadedBy: n.UploadedBy,
				Uploader:   n.Uploader,
				CreatedAt:  n.CreatedAt,
			})
		}
	}
	return items, models.NewPagination(page, pageSize, total), nil
}

func (s *ModerationService) find(ctx context.Context, kind models.ContentKind, id string) (contentItem, error) {
	var (
		item contentItem
		err  error
	)
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return item, appErrors.Clone(appErrors.ErrNotFound, string(kind)+" not found")
	}
	if kind == models.KindImage {
		var img *models.Image
		if img, err = s.images.FindByID(ctx, id); err == nil {
			item = contentItem{id: img.ID, status: img.Status, publicID: img.PublicID}
		}
	} else {
		var note *models.Note
		if note, err = s.notes.FindByID(ctx, id); err == nil {
			item = contentItem{id: note.ID, status: note.Status, publicID: note.PublicID}
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return item, appErrors.Clone(appErrors.ErrNotFound, string(kind)+" not found")
	}
	if err != nil {
		return item, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	return item, nil
}

func (s *ModerationService) transition(ctx context.Context, kind models.ContentKind, id string, status models.ModerationStatus) (bool, error) {
	if kind == models.KindImage {
		return s.images.TransitionFromPending(ctx, id, status)
	}
	return s.notes.TransitionFromPending(ctx, id, status)
}

func (s *ModerationService) invalidTransition(current models.ModerationStatus) error {
	return appErrors.WithMeta(appErrors.ErrInvalidTransition, map[string]interface{}{"status": string(current)})
}
