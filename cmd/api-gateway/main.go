package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/pharmaelevate/portal-api/api/swagger"
	"github.com/pharmaelevate/portal-api/internal/repository"
	"github.com/pharmaelevate/portal-api/internal/service"
	"github.com/pharmaelevate/portal-api/pkg/cache"
	"github.com/pharmaelevate/portal-api/pkg/config"
	"github.com/pharmaelevate/portal-api/pkg/database"
	"github.com/pharmaelevate/portal-api/pkg/logger"
	"github.com/pharmaelevate/portal-api/pkg/mailer"
	"github.com/pharmaelevate/portal-api/pkg/storage"
)

// @title PharmaElevate Portal API
// @version 1.0.0
// @description Student community portal: accounts, notes library, gallery and moderation
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			// Listings still work uncached.
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	signer := storage.NewSignedURLSigner(cfg.Uploads.SigningSecret, cfg.Uploads.SignedTTL)
	store, err := newObjectStore(ctx, cfg, signer)
	if err != nil {
		logr.Fatal("failed to init object storage", zap.Error(err))
	}

	mail, err := mailer.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to init mailer", zap.Error(err))
	}

	if cfg.OAuth.GoogleEnabled() {
		configureGoth(cfg)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	notes := repository.NewNoteRepository(db)
	images := repository.NewImageRepository(db)
	albums := repository.NewAlbumRepository(db)
	audits := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "pharmaelevate:")
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	auditSvc := service.NewAuditService(audits, metrics, logr, service.AuditConfig{
		BufferSize:    cfg.Audit.BufferSize,
		Workers:       cfg.Audit.Workers,
		Retention:     cfg.Audit.Retention,
		PurgeInterval: cfg.Audit.PurgeInterval,
	})
	// Audit writers outlive the signal so requests drained by Shutdown are still recorded.
	auditSvc.Start(context.WithoutCancel(ctx))
	defer auditSvc.Stop()
	go auditSvc.RunPurgeLoop(ctx)

	guard := service.NewRoleGuard(cfg.Auth.SuperAdminEmail)
	authSvc := service.NewAuthService(users, service.NewOTPIssuer(cfg.Auth.OTPTTL, cfg.Auth.ResendCooldown), mail, auditSvc, metrics, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "pharmaelevate",
		SuperAdminEmail:    cfg.Auth.SuperAdminEmail,
		MinPasswordLen:     cfg.Auth.MinPasswordLen,
		Production:         cfg.IsProduction(),
	})

	deps := routeDeps{
		cfg:        cfg,
		logger:     logr,
		metrics:    metrics,
		auth:       authSvc,
		audit:      auditSvc,
		profiles:   service.NewProfileService(users, auditSvc, validate, logr),
		users:      service.NewUserService(users, guard, auditSvc, metrics, logr),
		library:    service.NewLibraryService(notes, cacheSvc, logr),
		gallery:    service.NewGalleryService(albums, images, cacheSvc, auditSvc, validate, logr),
		moderation: service.NewModerationService(notes, images, store, cacheSvc, auditSvc, metrics, validate, logr),
		dashboard: service.NewDashboardService(service.DashboardServiceParams{
			Stats:   repository.NewDashboardRepository(db),
			Audits:  audits,
			Metrics: metrics,
			Cache:   cacheSvc,
			Logger:  logr,
		}),
		uploads: service.NewUploadService(notes, images, albums, store, signer, cacheSvc, auditSvc, metrics, validate, logr, service.UploadConfig{
			MaxImageBytes:     cfg.Uploads.MaxImageBytes,
			MaxNoteBytes:      cfg.Uploads.MaxNoteBytes,
			AllowedImageMIMEs: cfg.Uploads.AllowedImageMIMEs,
			AllowedNoteMIMEs:  cfg.Uploads.AllowedNoteMIMEs,
			RootFolder:        cfg.Storage.RootFolder,
			SignedTTL:         cfg.Uploads.SignedTTL,
		}),
		readiness: readinessChecks(db.PingContext, redisClient),
	}
	if local, ok := store.(*storage.LocalStorage); ok {
		deps.localFiles = local.Dir()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	auditSvc.Stop()
	logr.Info("server stopped")
}

func newObjectStore(ctx context.Context, cfg *config.Config, signer *storage.SignedURLSigner) (storage.ObjectStore, error) {
	if cfg.Storage.Driver == config.StorageDriverS3 {
		return storage.NewS3Storage(ctx, cfg.Storage)
	}
	directURL := cfg.PublicBaseURL + cfg.APIPrefix + "/upload/direct"
	return storage.NewLocalStorage(cfg.Storage.LocalDir, cfg.Storage.PublicURL, directURL, signer)
}

func configureGoth(cfg *config.Config) {
	goth.UseProviders(google.New(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.GoogleCallbackURL, "email", "profile"))

	store := sessions.NewCookieStore([]byte(cfg.OAuth.SessionSecret))
	store.MaxAge(int((10 * time.Minute).Seconds()))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.IsProduction()
	gothic.Store = store
}
