package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/pkg/jobs"
)

// AuditEvent describes something worth recording in the audit trail.
type AuditEvent struct {
	Type      string
	ActorID   string
	TargetID  string
	Resource  string
	Metadata  map[string]interface{}
	IPAddress string
	UserAgent string
	At        time.Time
}

// AuditRecorder accepts events without blocking the caller.
type AuditRecorder interface {
	Record(event AuditEvent)
}

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditConfig tunes the audit sink.
type AuditConfig struct {
	BufferSize    int
	Workers       int
	Retention     time.Duration
	PurgeInterval time.Duration
}

// AuditService is a fire-and-forget audit sink. Events go onto a bounded
// queue and a worker writes them; a full buffer drops the event.
type AuditService struct {
	repo    auditRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	config  AuditConfig
	now     func() time.Time
}

const auditJobType = "audit.record"

// NewAuditService constructs the sink. Call Start before recording.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 6 * time.Hour
	}
	svc := &AuditService{repo: repo, metrics: metrics, logger: logger, config: cfg, now: time.Now}
	svc.queue = jobs.NewQueue("audit", svc.handle, jobs.QueueConfig{
		Workers:        cfg.Workers,
		BufferSize:     cfg.BufferSize,
		DisableRetries: true,
		Logger:         logger,
	})
	return svc
}

// Start launches the writer workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes buffered events and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues event. It never blocks and never returns an error.
func (s *AuditService) Record(event AuditEvent) {
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: event})
	if err == nil {
		return
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		s.metrics.RecordAuditDrop()
	}
	s.logger.Warn("audit event dropped", zap.String("type", event.Type), zap.String("actor_id", event.ActorID), zap.Error(err))
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(AuditEvent)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	entry, err := event.toLog()
	if err != nil {
		s.logger.Warn("invalid audit metadata", zap.String("type", event.Type), zap.Error(err))
		return err
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("type", event.Type), zap.Error(err))
		return err
	}
	return nil
}

// Purge deletes entries older than the retention window.
func (s *AuditService) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.config.Retention)
	removed, err := s.repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("purged audit logs", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// RunPurgeLoop purges on every interval tick until ctx is done.
func (s *AuditService) RunPurgeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Purge(ctx); err != nil {
				s.logger.Warn("audit purge failed", zap.Error(err))
			}
		}
	}
}

func (e AuditEvent) toLog() (*models.AuditLog, error) {
	meta := types.JSONText("{}")
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		meta = raw
	}
	entry := &models.AuditLog{
		Type:      e.Type,
		Resource:  e.Resource,
		Metadata:  meta,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		CreatedAt: e.At,
	}
	if e.ActorID != "" {
		actor := e.ActorID
		entry.ActorID = &actor
	}
	if e.TargetID != "" {
		target := e.TargetID
		entry.TargetID = &target
	}
	return entry, nil
}
