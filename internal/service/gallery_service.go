package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/repository"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type albumRepository interface {
	Create(ctx context.Context, album *models.Album) error
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]models.Album, error)
}

type imageGalleryRepository interface {
	List(ctx context.Context, filter models.ImageFilter) ([]models.Image, int, error)
	IncrementLikes(ctx context.Context, id string) (int64, error)
}

// ImageList is a page of approved images in one album.
type ImageList struct {
	Items      []models.Image     `json:"items"`
	Pagination *models.Pagination `json:"pagination"`
}

// GalleryService serves albums and their approved images.
type GalleryService struct {
	albums    albumRepository
	images    imageGalleryRepository
	cache     *CacheService
	audit     AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGalleryService constructs a GalleryService.
func NewGalleryService(albums albumRepository, images imageGalleryRepository, cache *CacheService, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger) *GalleryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GalleryService{albums: albums, images: images, cache: cache, audit: audit, validator: validate, logger: logger}
}

// ListAlbums returns every album with its approved image count and cover.
func (s *GalleryService) ListAlbums(ctx context.Context) ([]models.Album, error) {
	var cached []models.Album
	if hit, _ := s.cache.Get(ctx, cacheAlbumsKey, &cached); hit {
		return cached, nil
	}
	albums, err := s.albums.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list albums")
	}
	if albums == nil {
		albums = []models.Album{}
	}
	_ = s.cache.Set(ctx, cacheAlbumsKey, albums, 0)
	return albums, nil
}

// ListImages returns approved images of one album.
func (s *GalleryService) ListImages(ctx context.Context, albumID string, page, pageSize int) (*ImageList, error) {
	if _, err := uuid.Parse(albumID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "album not found")
	}
	filter := models.ImageFilter{AlbumID: albumID, Status: models.StatusApproved}
	filter.Page, filter.PageSize = models.NormalizePage(page, pageSize)

	key := ImagesKey(filter)
	var cached ImageList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	exists, err := s.albums.Exists(ctx, albumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load album")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "album not found")
	}
	images, total, err := s.images.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list images")
	}
	if images == nil {
		images = []models.Image{}
	}
	result := &ImageList{Items: images, Pagination: models.NewPagination(filter.Page, filter.PageSize, total)}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// Like bumps the like counter of an approved image.
func (s *GalleryService) Like(ctx context.Context, imageID string) (int64, error) {
	if _, err := uuid.Parse(imageID); err != nil {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "image not found")
	}
	likes, err := s.images.IncrementLikes(ctx, imageID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "image not found")
	}
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to like image")
	}
	return likes, nil
}

// CreateAlbum adds a named album. Names are unique.
func (s *GalleryService) CreateAlbum(ctx context.Context, actor *models.User, req models.CreateAlbumRequest) (*models.Album, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid album")
	}

	createdBy := actor.ID
	album := &models.Album{Name: req.Name, Description: req.Description, CreatedBy: &createdBy}
	if err := s.albums.Create(ctx, album); err != nil {
		if repository.UniqueConstraint(err) != "" {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an album with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create album")
	}
	_ = s.cache.Invalidate(ctx, cacheAlbumsKey)
	if s.audit != nil {
		s.audit.Record(AuditEvent{Type: models.AuditAlbumCreated, ActorID: actor.ID, TargetID: album.ID, Resource: "album",
			Metadata: map[string]interface{}{"name": album.Name}})
	}
	return album, nil
}
