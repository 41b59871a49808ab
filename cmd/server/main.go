// Package main runs the Trackline HTTP API server with WebSocket event
// streaming and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trackline/backend/config"
	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/apikeys"
	"github.com/trackline/backend/internal/assistant"
	"github.com/trackline/backend/internal/attachments"
	"github.com/trackline/backend/internal/auth"
	"github.com/trackline/backend/internal/calendar"
	"github.com/trackline/backend/internal/documents"
	"github.com/trackline/backend/internal/events"
	"github.com/trackline/backend/internal/issues"
	"github.com/trackline/backend/internal/labels"
	"github.com/trackline/backend/internal/middleware"
	"github.com/trackline/backend/internal/notify"
	"github.com/trackline/backend/internal/organizations"
	"github.com/trackline/backend/internal/projects"
	"github.com/trackline/backend/internal/sprints"
	"github.com/trackline/backend/internal/webhooks"
	"github.com/trackline/backend/pkg/database"
	"github.com/trackline/backend/pkg/metrics"
	"github.com/trackline/backend/pkg/queue"
	"github.com/trackline/backend/pkg/ratelimit"
	"github.com/trackline/backend/pkg/redis"
	"github.com/trackline/backend/pkg/response"
	"github.com/trackline/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	limiter := ratelimit.NewLimiter(rdb.Client)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Membership notification emails (drained by the worker)
	mailNotify := notify.NewMailer(authRepo, jobQueue, logger)

	// Organizations
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo, mailNotify)

	// Projects + role evaluation
	projectRepo := projects.NewRepository(pool)
	eval := access.NewEvaluator(orgRepo, projectRepo)
	checker := access.NewChecker(projectRepo, eval)
	projectHandler := projects.NewHandler(projectRepo, orgRepo, eval, mailNotify)

	// Realtime events + webhook fan-out
	redisPubSub := events.NewRedisPubSub(rdb.Client, logger)
	hub := events.NewHub(logger, redisPubSub, redisPubSub)
	webhookRepo := webhooks.NewRepository(pool)
	dispatcher := webhooks.NewDispatcher(webhookRepo, jobQueue, logger)
	webhookHandler := webhooks.NewHandler(webhookRepo, dispatcher)
	notifier := events.MultiNotifier{hub, dispatcher}

	// Issues
	issueRepo := issues.NewRepository(pool)
	issueHandler := issues.NewHandler(issueRepo, projectRepo, eval, limiter, notifier,
		cfg.Limits.IssueCreatePerMinute, logger)
	issueExporter := issues.NewExporter(issueRepo, s3Client)

	// Sprints
	sprintRepo := sprints.NewRepository(pool)
	sprintHandler := sprints.NewHandler(sprintRepo, issueRepo, notifier, logger)

	// Documents
	documentRepo := documents.NewRepository(pool)
	documentHandler := documents.NewHandler(documentRepo, notifier)

	// Labels
	labelRepo := labels.NewRepository(pool)
	labelHandler := labels.NewHandler(labelRepo, issueRepo, logger)

	// Calendar
	calendarRepo := calendar.NewRepository(pool)
	calendarHandler := calendar.NewHandler(calendarRepo)

	// API keys (programmatic surface)
	keyRepo := apikeys.NewRepository(pool)
	keyService := apikeys.NewService(keyRepo, cfg.Limits.APIKeyDefaultPerMin)
	keyHandler := apikeys.NewHandler(keyRepo, keyService)

	// Attachments (presigned S3)
	attachmentHandler := attachments.NewHandler(s3Client)

	// Assistant
	assistantClient := assistant.NewClient(assistant.Config{
		BaseURL: cfg.Assistant.BaseURL,
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
		Timeout: time.Duration(cfg.Assistant.Timeout) * time.Second,
	})
	assistantHandler := assistant.NewHandler(assistantClient, issueRepo, sprintRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())

	// Health + metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", metrics.Handler())

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (assignee/member pickers)
		api.GET("/users", authHandler.List)

		// Organizations
		api.GET("/organizations", orgHandler.ListMine)
		api.POST("/organizations", orgHandler.Create)
		api.GET("/organizations/:id", orgHandler.Get)
		api.PATCH("/organizations/:id", orgHandler.Update)
		api.GET("/organizations/:id/members", orgHandler.ListMembers)
		api.POST("/organizations/:id/members", orgHandler.AddMember)
		api.DELETE("/organizations/:id/members/:userId", orgHandler.RemoveMember)

		// Projects
		api.GET("/projects", projectHandler.ListMine)
		api.POST("/projects", projectHandler.Create)
		api.GET("/projects/:projectId", checker.RequireProject(access.RoleViewer), projectHandler.Get)
		api.PATCH("/projects/:projectId", checker.RequireProject(access.RoleEditor), projectHandler.Update)
		api.PUT("/projects/:projectId/workflow", checker.RequireProject(access.RoleAdmin), projectHandler.UpdateWorkflow)
		api.DELETE("/projects/:projectId", checker.RequireProject(access.RoleAdmin), projectHandler.Delete)
		api.POST("/projects/:projectId/restore", projectHandler.Restore)
		api.GET("/projects/:projectId/role", checker.RequireProject(access.RoleViewer), projectHandler.MyRole)
		api.GET("/projects/:projectId/members", checker.RequireProject(access.RoleViewer), projectHandler.ListMembers)
		api.POST("/projects/:projectId/members", checker.RequireProject(access.RoleAdmin), projectHandler.AddMember)
		api.DELETE("/projects/:projectId/members/:userId", checker.RequireProject(access.RoleAdmin), projectHandler.RemoveMember)

		// Issues
		api.POST("/projects/:projectId/issues", checker.RequireProject(access.RoleEditor), issueHandler.Create)
		api.GET("/projects/:projectId/issues", checker.RequireProject(access.RoleViewer), issueHandler.List)
		api.GET("/projects/:projectId/issues/search", checker.RequireProject(access.RoleViewer), issueHandler.Search)
		api.POST("/projects/:projectId/issues/export", checker.RequireProject(access.RoleViewer), issueExporter.Export)
		api.GET("/issues/:issueId", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleViewer), issueHandler.Get)
		api.PATCH("/issues/:issueId", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), issueHandler.Update)
		api.PATCH("/issues/:issueId/status", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), issueHandler.UpdateStatus)
		api.DELETE("/issues/:issueId", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), issueHandler.Delete)
		api.POST("/issues/:issueId/comments", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleViewer), issueHandler.CreateComment)
		api.GET("/issues/:issueId/comments", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleViewer), issueHandler.ListComments)

		// Bulk issue operations (per-project roles checked inside)
		api.POST("/issues/bulk/status", issueHandler.BulkUpdateStatus)
		api.POST("/issues/bulk/assign", issueHandler.BulkAssign)
		api.POST("/issues/bulk/labels", issueHandler.BulkAddLabels)
		api.POST("/issues/bulk/sprint", issueHandler.BulkMoveToSprint)
		api.POST("/issues/bulk/delete", issueHandler.BulkDelete)

		// Attachments (presigned URLs; mounted under the issue gate)
		api.POST("/issues/:issueId/attachments/upload-url", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), attachmentHandler.UploadURL)
		api.GET("/issues/:issueId/attachments/download-url", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleViewer), attachmentHandler.DownloadURL)
		api.DELETE("/issues/:issueId/attachments", checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), attachmentHandler.Delete)

		// Sprints
		api.POST("/projects/:projectId/sprints", checker.RequireProject(access.RoleEditor), sprintHandler.Create)
		api.GET("/projects/:projectId/sprints", checker.RequireProject(access.RoleViewer), sprintHandler.List)
		api.GET("/sprints/:sprintId", checker.RequireEntity("sprint", "sprintId", sprintHandler.Resolve, access.RoleViewer), sprintHandler.Get)
		api.POST("/sprints/:sprintId/start", checker.RequireEntity("sprint", "sprintId", sprintHandler.Resolve, access.RoleEditor), sprintHandler.Start)
		api.POST("/sprints/:sprintId/complete", checker.RequireEntity("sprint", "sprintId", sprintHandler.Resolve, access.RoleEditor), sprintHandler.Complete)

		// Documents
		api.POST("/projects/:projectId/documents", checker.RequireProject(access.RoleEditor), documentHandler.Create)
		api.GET("/projects/:projectId/documents", checker.RequireProject(access.RoleViewer), documentHandler.List)
		api.GET("/documents/:documentId", checker.RequireEntity("document", "documentId", documentHandler.Resolve, access.RoleViewer), documentHandler.Get)
		api.PATCH("/documents/:documentId", checker.RequireEntity("document", "documentId", documentHandler.Resolve, access.RoleEditor), documentHandler.Update)
		api.DELETE("/documents/:documentId", checker.RequireEntity("document", "documentId", documentHandler.Resolve, access.RoleEditor), documentHandler.Delete)
		api.GET("/documents/:documentId/versions", checker.RequireEntity("document", "documentId", documentHandler.Resolve, access.RoleViewer), documentHandler.ListVersions)

		// Labels
		api.POST("/projects/:projectId/labels", checker.RequireProject(access.RoleEditor), labelHandler.Create)
		api.GET("/projects/:projectId/labels", checker.RequireProject(access.RoleViewer), labelHandler.List)
		api.PATCH("/labels/:labelId", checker.RequireEntity("label", "labelId", labelHandler.Resolve, access.RoleEditor), labelHandler.Update)
		api.DELETE("/labels/:labelId", checker.RequireEntity("label", "labelId", labelHandler.Resolve, access.RoleEditor), labelHandler.Delete)

		// Calendar
		api.POST("/projects/:projectId/calendar", checker.RequireProject(access.RoleEditor), calendarHandler.Create)
		api.GET("/projects/:projectId/calendar", checker.RequireProject(access.RoleViewer), calendarHandler.List)
		api.GET("/calendar/:eventId", checker.RequireEntity("calendar_event", "eventId", calendarHandler.Resolve, access.RoleViewer), calendarHandler.Get)
		api.PATCH("/calendar/:eventId", checker.RequireEntity("calendar_event", "eventId", calendarHandler.Resolve, access.RoleEditor), calendarHandler.Update)
		api.DELETE("/calendar/:eventId", checker.RequireEntity("calendar_event", "eventId", calendarHandler.Resolve, access.RoleEditor), calendarHandler.Delete)

		// Webhooks (project admin manages; viewers may list)
		api.POST("/projects/:projectId/webhooks", checker.RequireProject(access.RoleAdmin), webhookHandler.Create)
		api.GET("/projects/:projectId/webhooks", checker.RequireProject(access.RoleViewer), webhookHandler.List)
		api.PATCH("/webhooks/:webhookId", checker.RequireEntity("webhook", "webhookId", webhookHandler.Resolve, access.RoleAdmin), webhookHandler.Update)
		api.DELETE("/webhooks/:webhookId", checker.RequireEntity("webhook", "webhookId", webhookHandler.Resolve, access.RoleAdmin), webhookHandler.Delete)
		api.POST("/webhooks/:webhookId/test", checker.RequireEntity("webhook", "webhookId", webhookHandler.Resolve, access.RoleAdmin), webhookHandler.Test)
		api.GET("/webhooks/:webhookId/executions", checker.RequireEntity("webhook", "webhookId", webhookHandler.Resolve, access.RoleAdmin), webhookHandler.ListExecutions)
		api.POST("/webhooks/:webhookId/executions/:executionId/retry", checker.RequireEntity("webhook", "webhookId", webhookHandler.Resolve, access.RoleAdmin), webhookHandler.RetryExecution)

		// API keys (personal; no project scope)
		api.POST("/apikeys", keyHandler.Create)
		api.GET("/apikeys", keyHandler.List)
		api.PATCH("/apikeys/:keyId", keyHandler.Update)
		api.DELETE("/apikeys/:keyId", keyHandler.Revoke)
		api.POST("/apikeys/:keyId/rotate", keyHandler.Rotate)
		api.GET("/apikeys/:keyId/usage", keyHandler.Usage)

		// Assistant
		api.POST("/projects/:projectId/assistant", checker.RequireProject(access.RoleViewer), assistantHandler.Ask)
	}

	// Programmatic API surface (API key auth, scoped)
	v1 := router.Group("/api/v1")
	v1.Use(middleware.APIKey(keyService, limiter, keyRepo))
	{
		v1.GET("/projects", middleware.RequireScope("projects:read"), projectHandler.ListMine)
		v1.GET("/projects/:projectId", middleware.RequireScope("projects:read"), checker.RequireProject(access.RoleViewer), projectHandler.Get)
		v1.GET("/projects/:projectId/issues", middleware.RequireScope("issues:read"), checker.RequireProject(access.RoleViewer), issueHandler.List)
		v1.POST("/projects/:projectId/issues", middleware.RequireScope("issues:write"), checker.RequireProject(access.RoleEditor), issueHandler.Create)
		v1.GET("/issues/:issueId", middleware.RequireScope("issues:read"), checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleViewer), issueHandler.Get)
		v1.PATCH("/issues/:issueId", middleware.RequireScope("issues:write"), checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), issueHandler.Update)
		v1.PATCH("/issues/:issueId/status", middleware.RequireScope("issues:write"), checker.RequireEntity("issue", "issueId", issueHandler.Resolve, access.RoleEditor), issueHandler.UpdateStatus)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", events.ServeWs(hub, jwtService, projectRepo, eval, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
