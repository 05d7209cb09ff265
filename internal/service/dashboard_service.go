package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/dto"
	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type dashboardStatsRepository interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
}

type auditLister interface {
	ListRecent(ctx context.Context, eventType string, limit int) ([]models.AuditLog, error)
}

const dashboardCacheKey = "dash:admin"

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL       time.Duration
	RecentActivity int
}

// DashboardService composes the admin dashboard from database counters,
// recent audit entries and live process metrics.
type DashboardService struct {
	stats   dashboardStatsRepository
	audits  auditLister
	metrics *MetricsService
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Stats   dashboardStatsRepository
	Audits  auditLister
	Metrics *MetricsService
	Cache   *CacheService
	Logger  *zap.Logger
	Config  DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.RecentActivity <= 0 {
		cfg.RecentActivity = 10
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		stats:   params.Stats,
		audits:  params.Audits,
		metrics: params.Metrics,
		cache:   params.Cache,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
}

// Admin returns the dashboard and reports whether the counters came from
// cache. Process metrics are always read live.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	counters, hit, err := s.tryCache(ctx)
	if err != nil {
		return nil, false, err
	}
	if !hit {
		counters, err = s.composeCounters(ctx)
		if err != nil {
			return nil, false, err
		}
		s.persistCache(ctx, counters)
	}
	return &dto.AdminDashboardResponse{
		Stats:          counters.Stats,
		System:         s.metrics.Snapshot(),
		RecentActivity: counters.RecentActivity,
		GeneratedAt:    counters.GeneratedAt,
	}, hit, nil
}

func (s *DashboardService) composeCounters(ctx context.Context) (*dto.DashboardCounters, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard stats")
	}
	counters := &dto.DashboardCounters{Stats: *stats, RecentActivity: []models.AuditLog{}, GeneratedAt: s.now().UTC()}
	if s.audits != nil {
		recent, err := s.audits.ListRecent(ctx, "", s.cfg.RecentActivity)
		if err != nil {
			// The activity feed is secondary; the counters still render.
			s.logger.Warn("load recent activity failed", zap.Error(err))
		} else if recent != nil {
			counters.RecentActivity = recent
		}
	}
	return counters, nil
}

func (s *DashboardService) tryCache(ctx context.Context) (*dto.DashboardCounters, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var cached dto.DashboardCounters
	hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached)
	if err != nil {
		return nil, false, nil
	}
	if hit {
		return &cached, true, nil
	}
	return nil, false, nil
}

func (s *DashboardService) persistCache(ctx context.Context, value *dto.DashboardCounters) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", dashboardCacheKey), zap.Error(err))
	}
}
