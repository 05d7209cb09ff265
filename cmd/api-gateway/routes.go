package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/handler"
	"github.com/pharmaelevate/portal-api/internal/middleware"
	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/service"
	"github.com/pharmaelevate/portal-api/pkg/config"
	"github.com/pharmaelevate/portal-api/pkg/logger"
	corsmiddleware "github.com/pharmaelevate/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pharmaelevate/portal-api/pkg/middleware/requestid"
)

type routeDeps struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *service.MetricsService
	auth       *service.AuthService
	audit      *service.AuditService
	profiles   *service.ProfileService
	users      *service.UserService
	library    *service.LibraryService
	gallery    *service.GalleryService
	moderation *service.ModerationService
	dashboard  *service.DashboardService
	uploads    *service.UploadService
	readiness  map[string]handler.ReadinessCheck
	// localFiles is set when the local storage driver serves uploads itself.
	localFiles string
}

func newRouter(deps routeDeps) *gin.Engine {
	cfg := deps.cfg
	logr := deps.logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	ops := handler.NewMetricsHandler(deps.metrics, deps.readiness)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if !cfg.IsProduction() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if deps.localFiles != "" {
		r.Static("/files", deps.localFiles)
	}

	authHandler := handler.NewAuthHandler(deps.auth)
	socialHandler := handler.NewSocialHandler(deps.auth)
	profileHandler := handler.NewProfileHandler(deps.profiles)
	libraryHandler := handler.NewLibraryHandler(deps.library)
	galleryHandler := handler.NewGalleryHandler(deps.gallery)
	uploadHandler := handler.NewUploadHandler(deps.uploads, max(cfg.Uploads.MaxImageBytes, cfg.Uploads.MaxNoteBytes))
	userHandler := handler.NewUserHandler(deps.users)
	moderationHandler := handler.NewModerationHandler(deps.moderation)
	dashboardHandler := handler.NewDashboardHandler(deps.dashboard)

	api := r.Group(cfg.APIPrefix)

	api.POST("/register", authHandler.Register)
	api.POST("/verify", authHandler.Verify)
	api.POST("/auth/resend-code", authHandler.ResendCode)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/send-otp", authHandler.SendOTP)
	if cfg.OAuth.GoogleEnabled() {
		api.GET("/auth/google", socialHandler.Begin)
		api.GET("/auth/google/callback", socialHandler.Callback)
	}

	api.GET("/profiles/:username", profileHandler.Public)
	api.GET("/notes", libraryHandler.List)
	api.GET("/notes/:id/download", libraryHandler.Download)
	api.GET("/albums", galleryHandler.ListAlbums)
	api.GET("/albums/:id/images", galleryHandler.ListImages)
	if deps.localFiles != "" {
		api.PUT("/upload/direct", uploadHandler.Direct)
	}

	// Blocked accounts keep the ability to end their own sessions.
	session := api.Group("", middleware.JWT(deps.auth))
	session.POST("/auth/logout", authHandler.Logout)

	member := api.Group("", middleware.JWT(deps.auth), middleware.ActiveUser(deps.auth))
	member.GET("/auth/me", authHandler.Me)
	member.POST("/auth/change-password", authHandler.ChangePassword)
	member.GET("/profile", profileHandler.Get)
	member.PATCH("/profile", profileHandler.Update)
	member.POST("/images/:id/like", galleryHandler.Like)
	member.POST("/upload", uploadHandler.Upload)
	member.POST("/upload/sign", uploadHandler.Sign)
	member.POST("/upload/complete", uploadHandler.Complete)

	admin := member.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", middleware.Audit(deps.audit, models.AuditUsersViewed, "user"), userHandler.List)
	admin.GET("/users/export", userHandler.Export)
	admin.PATCH("/users/:id", userHandler.ApplyAction)
	admin.GET("/stats", dashboardHandler.Stats)
	admin.POST("/approve", moderationHandler.Approve)
	admin.GET("/pending", moderationHandler.Pending)
	admin.DELETE("/content/:type/:id", moderationHandler.Delete)
	admin.POST("/albums", galleryHandler.CreateAlbum)

	return r
}

func readinessChecks(dbPing func(ctx context.Context) error, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{"postgres": dbPing}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
