package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/repository"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/storage"
)

type noteWriter interface {
	Create(ctx context.Context, note *models.Note) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	ExistsByPublicID(ctx context.Context, publicID string) (bool, error)
}

type imageWriter interface {
	Create(ctx context.Context, image *models.Image) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	ExistsByPublicID(ctx context.Context, publicID string) (bool, error)
}

type albumLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

var (
	defaultImageMIMEs = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	defaultNoteMIMEs  = []string{"application/pdf"}
)

const compensationTimeout = 10 * time.Second

// UploadConfig bounds what the upload coordinator accepts.
type UploadConfig struct {
	MaxImageBytes     int64
	MaxNoteBytes      int64
	AllowedImageMIMEs []string
	AllowedNoteMIMEs  []string
	RootFolder        string
	SignedTTL         time.Duration
}

// UploadFile is a binary received through the multipart endpoint.
type UploadFile struct {
	Name string
	Size int64
	Body io.Reader
}

// UploadService stores a binary remotely and then records its metadata,
// destroying the remote object again when the record cannot be written.
type UploadService struct {
	notes     noteWriter
	images    imageWriter
	albums    albumLookup
	store     storage.ObjectStore
	signer    *storage.SignedURLSigner
	cache     *CacheService
	audit     AuditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    UploadConfig
}

// NewUploadService constructs the upload coordinator.
func NewUploadService(notes noteWriter, images imageWriter, albums albumLookup, store storage.ObjectStore, signer *storage.SignedURLSigner, cache *CacheService, audit AuditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg UploadConfig) *UploadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 << 20
	}
	if cfg.MaxNoteBytes <= 0 {
		cfg.MaxNoteBytes = 25 << 20
	}
	if len(cfg.AllowedImageMIMEs) == 0 {
		cfg.AllowedImageMIMEs = defaultImageMIMEs
	}
	if len(cfg.AllowedNoteMIMEs) == 0 {
		cfg.AllowedNoteMIMEs = defaultNoteMIMEs
	}
	if cfg.SignedTTL <= 0 {
		cfg.SignedTTL = 15 * time.Minute
	}
	return &UploadService{
		notes:     notes,
		images:    images,
		albums:    albums,
		store:     store,
		signer:    signer,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// Commit validates file and meta, uploads the binary and records it.
// Nothing leaves the process until every local check has passed.
func (s *UploadService) Commit(ctx context.Context, actor *models.User, file UploadFile, meta models.UploadMeta) (*models.UploadResult, error) {
	if err := s.validateMeta(ctx, meta); err != nil {
		return nil, s.reject(meta.Kind, err)
	}
	limit := s.limit(meta.Kind)
	if file.Size > limit {
		return nil, s.reject(meta.Kind, tooLarge(limit))
	}
	if file.Body == nil {
		return nil, s.reject(meta.Kind, appErrors.Clone(appErrors.ErrValidation, "file is required"))
	}

	payload, err := io.ReadAll(io.LimitReader(file.Body, limit+1))
	if err != nil {
		return nil, s.reject(meta.Kind, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read file"))
	}
	if int64(len(payload)) > limit {
		return nil, s.reject(meta.Kind, tooLarge(limit))
	}
	if len(payload) == 0 {
		return nil, s.reject(meta.Kind, appErrors.Clone(appErrors.ErrValidation, "file is empty"))
	}
	contentType := http.DetectContentType(payload)
	if !s.allowed(meta.Kind, contentType) {
		return nil, s.reject(meta.Kind, appErrors.Clone(appErrors.ErrUnsupportedMedia, "unsupported file type "+baseMIME(contentType)))
	}
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	if err := s.ensureUnique(ctx, meta.Kind, hash); err != nil {
		return nil, s.reject(meta.Kind, err)
	}

	key := storage.NewKey(s.config.RootFolder, meta.Kind.Folder(), file.Name)
	obj, err := s.store.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), baseMIME(contentType))
	if err != nil {
		s.logger.Error("object upload failed", zap.String("key", key), zap.Error(err))
		s.metrics.RecordUpload(meta.Kind, "storage_error")
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	if obj.URL == "" {
		obj.URL = s.store.URL(key)
	}
	return s.record(ctx, actor, meta, obj, hash)
}

// Sign issues a presigned PUT for a browser upload together with a ticket
// that Complete later redeems.
func (s *UploadService) Sign(ctx context.Context, actor *models.User, req models.SignUploadRequest) (*models.SignUploadResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(req.Kind, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload request"))
	}
	if limit := s.limit(req.Kind); req.Size > limit {
		return nil, s.reject(req.Kind, tooLarge(limit))
	}
	contentType := baseMIME(req.ContentType)
	if !s.allowed(req.Kind, contentType) {
		return nil, s.reject(req.Kind, appErrors.Clone(appErrors.ErrUnsupportedMedia, "unsupported file type "+contentType))
	}
	hash := strings.ToLower(req.ContentHash)
	if err := s.ensureUnique(ctx, req.Kind, hash); err != nil {
		return nil, s.reject(req.Kind, err)
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "signed uploads are not configured")
	}

	pending := storage.Ticket{
		Key:         storage.NewKey(s.config.RootFolder, req.Kind.Folder(), req.FileName),
		Kind:        string(req.Kind),
		ContentHash: hash,
		ContentType: contentType,
		Size:        req.Size,
		UploaderID:  actor.ID,
	}
	presigned, err := s.store.PresignPut(ctx, pending, s.config.SignedTTL)
	if err != nil {
		s.logger.Error("presign upload failed", zap.String("key", pending.Key), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	ticket, expiresAt, err := s.signer.Generate(pending, s.config.SignedTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign upload")
	}
	return &models.SignUploadResponse{
		Key:       pending.Key,
		UploadURL: presigned.URL,
		Method:    presigned.Method,
		Headers:   presigned.Headers,
		Ticket:    ticket,
		ExpiresAt: expiresAt,
	}, nil
}

// Complete records an object the browser uploaded with a signed URL.
func (s *UploadService) Complete(ctx context.Context, actor *models.User, req models.CompleteUploadRequest) (*models.UploadResult, error) {
	ticket, err := s.parseTicket(req.Ticket)
	if err != nil {
		return nil, err
	}
	if ticket.UploaderID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "upload ticket belongs to another user")
	}
	kind, ok := models.ParseContentKind(ticket.Kind)
	if !ok || !storage.KeyInFolder(ticket.Key, s.config.RootFolder, kind.Folder()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid upload ticket")
	}
	meta := req.Meta
	if meta.Kind == "" {
		meta.Kind = kind
	}
	if meta.Kind != kind {
		return nil, appErrors.Clone(appErrors.ErrValidation, "metadata type does not match the upload ticket")
	}
	if err := s.validateMeta(ctx, meta); err != nil {
		return nil, s.reject(kind, err)
	}

	obj, err := s.store.Stat(ctx, ticket.Key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "object has not been uploaded")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	// A redeemed ticket points at an object that already backs a record.
	redeemed, err := s.keyRecorded(ctx, kind, ticket.Key)
	if err != nil {
		return nil, err
	}
	if redeemed {
		return nil, s.reject(kind, appErrors.ErrDuplicate)
	}
	if limit := s.limit(kind); obj.Size > limit {
		s.compensate(ctx, actor, ticket.Key, "oversized direct upload")
		return nil, s.reject(kind, tooLarge(limit))
	}
	// The hash was free when the ticket was signed; another upload may have
	// claimed it since.
	if err := s.ensureUnique(ctx, kind, ticket.ContentHash); err != nil {
		s.compensate(ctx, actor, ticket.Key, "duplicate direct upload")
		return nil, s.reject(kind, err)
	}
	if obj.URL == "" {
		obj.URL = s.store.URL(ticket.Key)
	}
	if obj.ContentType == "" {
		obj.ContentType = ticket.ContentType
	}
	return s.record(ctx, actor, meta, obj, ticket.ContentHash)
}

// ReceiveDirect stores the body of a signed PUT against the local driver.
// Size, type and hash must match what the ticket declared.
func (s *UploadService) ReceiveDirect(ctx context.Context, token string, body io.Reader) (*storage.Object, error) {
	ticket, err := s.parseTicket(token)
	if err != nil {
		return nil, err
	}
	kind, ok := models.ParseContentKind(ticket.Kind)
	if !ok || !storage.KeyInFolder(ticket.Key, s.config.RootFolder, kind.Folder()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid upload ticket")
	}
	payload, err := io.ReadAll(io.LimitReader(body, ticket.Size+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read body")
	}
	if int64(len(payload)) != ticket.Size {
		return nil, appErrors.Clone(appErrors.ErrValidation, "body size does not match the signed size")
	}
	if !s.allowed(kind, http.DetectContentType(payload)) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, "unsupported file type")
	}
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != ticket.ContentHash {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content hash mismatch")
	}
	obj, err := s.store.Upload(ctx, ticket.Key, bytes.NewReader(payload), ticket.Size, ticket.ContentType)
	if err != nil {
		s.logger.Error("direct upload write failed", zap.String("key", ticket.Key), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	return &obj, nil
}

func (s *UploadService) record(ctx context.Context, actor *models.User, meta models.UploadMeta, obj storage.Object, hash string) (*models.UploadResult, error) {
	status := models.StatusPending
	if actor.IsAdmin() {
		status = models.StatusApproved
	}

	result := &models.UploadResult{Kind: meta.Kind, URL: obj.URL, ContentHash: hash, Status: status}
	var err error
	switch meta.Kind {
	case models.KindImage:
		image := &models.Image{
			AlbumID:     meta.AlbumID,
			Caption:     strings.TrimSpace(meta.Caption),
			URL:         obj.URL,
			PublicID:    obj.Key,
			ContentHash: hash,
			MimeType:    obj.ContentType,
			SizeBytes:   obj.Size,
			UploadedBy:  actor.ID,
			Status:      status,
		}
		err = s.images.Create(ctx, image)
		result.ID = image.ID
	default:
		note := &models.Note{
			Title:       strings.TrimSpace(meta.Title),
			Subject:     strings.TrimSpace(meta.Subject),
			Semester:    meta.Semester,
			Description: strings.TrimSpace(meta.Description),
			FileURL:     obj.URL,
			PublicID:    obj.Key,
			ContentHash: hash,
			MimeType:    obj.ContentType,
			SizeBytes:   obj.Size,
			UploadedBy:  actor.ID,
			Status:      status,
		}
		err = s.notes.Create(ctx, note)
		result.ID = note.ID
	}
	if err != nil {
		constraint := repository.UniqueConstraint(err)
		if strings.HasSuffix(constraint, "_public_id_key") {
			// A concurrent completion of the same ticket won; its row owns the object.
			s.metrics.RecordUpload(meta.Kind, "rejected")
			return nil, appErrors.ErrDuplicate
		}
		s.logger.Error("upload record failed", zap.String("kind", string(meta.Kind)), zap.String("key", obj.Key), zap.Error(err))
		s.compensate(ctx, actor, obj.Key, "record insert failed")
		s.metrics.RecordUpload(meta.Kind, "persistence_error")
		if constraint != "" {
			return nil, appErrors.ErrDuplicate
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistenceFailed.Code, appErrors.ErrPersistenceFailed.Status, appErrors.ErrPersistenceFailed.Message)
	}

	s.metrics.RecordUpload(meta.Kind, "ok")
	if status == models.StatusApproved {
		s.cache.InvalidateContent(ctx, meta.Kind)
	}
	if s.audit != nil {
		s.audit.Record(AuditEvent{
			Type:     models.AuditContentUploaded,
			ActorID:  actor.ID,
			TargetID: result.ID,
			Resource: string(meta.Kind),
			Metadata: map[string]interface{}{"key": obj.Key, "status": string(status), "size": obj.Size},
		})
	}
	return result, nil
}

// compensate removes an object whose record could not be kept. A failure
// leaves an orphan that is logged and counted, never retried.
func (s *UploadService) compensate(ctx context.Context, actor *models.User, key, reason string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := s.store.Destroy(cctx, key)
	s.metrics.RecordCompensation(err == nil)
	if err == nil {
		s.logger.Info("upload compensated", zap.String("key", key), zap.String("reason", reason))
		return
	}
	s.logger.Error("upload compensation failed; object orphaned", zap.String("key", key), zap.String("reason", reason), zap.Error(err))
	if s.audit != nil {
		s.audit.Record(AuditEvent{
			Type:     models.AuditCompensationFail,
			ActorID:  actor.ID,
			TargetID: key,
			Resource: "storage",
			Metadata: map[string]interface{}{"reason": reason, "error": err.Error()},
		})
	}
}

func (s *UploadService) validateMeta(ctx context.Context, meta models.UploadMeta) error {
	if err := s.validator.Struct(meta); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload metadata")
	}
	switch meta.Kind {
	case models.KindNote:
		if strings.TrimSpace(meta.Title) == "" || strings.TrimSpace(meta.Subject) == "" || meta.Semester == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "notes require title, subject and semester")
		}
	case models.KindImage:
		if meta.AlbumID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "images require an album")
		}
		exists, err := s.albums.Exists(ctx, meta.AlbumID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load album")
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, "album not found")
		}
	}
	return nil
}

func (s *UploadService) ensureUnique(ctx context.Context, kind models.ContentKind, hash string) error {
	var (
		exists bool
		err    error
	)
	if kind == models.KindImage {
		exists, err = s.images.ExistsByHash(ctx, hash)
	} else {
		exists, err = s.notes.ExistsByHash(ctx, hash)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicates")
	}
	if exists {
		return appErrors.ErrDuplicate
	}
	return nil
}

func (s *UploadService) keyRecorded(ctx context.Context, kind models.ContentKind, key string) (bool, error) {
	var (
		exists bool
		err    error
	)
	if kind == models.KindImage {
		exists, err = s.images.ExistsByPublicID(ctx, key)
	} else {
		exists, err = s.notes.ExistsByPublicID(ctx, key)
	}
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check upload ticket")
	}
	return exists, nil
}

func (s *UploadService) parseTicket(token string) (storage.Ticket, error) {
	if s.signer == nil {
		return storage.Ticket{}, appErrors.Clone(appErrors.ErrValidation, "invalid upload ticket")
	}
	ticket, err := s.signer.Parse(token, false)
	switch {
	case errors.Is(err, storage.ErrTicketExpired):
		return storage.Ticket{}, appErrors.Clone(appErrors.ErrValidation, "upload ticket expired")
	case err != nil:
		return storage.Ticket{}, appErrors.Clone(appErrors.ErrValidation, "invalid upload ticket")
	}
	return ticket, nil
}

func (s *UploadService) limit(kind models.ContentKind) int64 {
	if kind == models.KindImage {
		return s.config.MaxImageBytes
	}
	return s.config.MaxNoteBytes
}

func (s *UploadService) allowed(kind models.ContentKind, contentType string) bool {
	allowed := s.config.AllowedNoteMIMEs
	if kind == models.KindImage {
		allowed = s.config.AllowedImageMIMEs
	}
	contentType = baseMIME(contentType)
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, contentType) {
			return true
		}
	}
	return false
}

func (s *UploadService) reject(kind models.ContentKind, err error) error {
	if kind == "" {
		kind = "unknown"
	}
	s.metrics.RecordUpload(kind, "rejected")
	return err
}

func tooLarge(limit int64) error {
	return appErrors.WithMeta(appErrors.ErrFileTooLarge, map[string]interface{}{"maxBytes": limit})
}

func baseMIME(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
