package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const (
	cacheNotesPrefix  = "notes:"
	cacheImagesPrefix = "images:"
	cacheAlbumsKey    = "albums:all"
)

// CacheService caches approved listings and tracks hit ratio.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateContent drops every cached listing that may contain kind.
// Album listings carry image counts and covers so they go with images.
func (s *CacheService) InvalidateContent(ctx context.Context, kind models.ContentKind) {
	if kind == models.KindImage {
		_ = s.Invalidate(ctx, cacheImagesPrefix+"*")
		_ = s.Invalidate(ctx, cacheAlbumsKey)
		return
	}
	_ = s.Invalidate(ctx, cacheNotesPrefix+"*")
}

// NotesKey derives the cache key for an approved note listing.
func NotesKey(filter models.NoteFilter) string {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return fmt.Sprintf("%ssubject=%s:semester=%d:q=%s:page=%d:size=%d", cacheNotesPrefix,
		strings.ToLower(filter.Subject), filter.Semester, strings.ToLower(filter.Search), page, size)
}

// ImagesKey derives the cache key for an approved album listing.
func ImagesKey(filter models.ImageFilter) string {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return fmt.Sprintf("%salbum=%s:page=%d:size=%d", cacheImagesPrefix, filter.AlbumID, page, size)
}
