package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/voemax/passenger-api/api/swagger"
	"github.com/voemax/passenger-api/internal/handler"
	"github.com/voemax/passenger-api/internal/middleware"
	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/internal/repository"
	"github.com/voemax/passenger-api/internal/service"
	"github.com/voemax/passenger-api/pkg/cache"
	"github.com/voemax/passenger-api/pkg/config"
	"github.com/voemax/passenger-api/pkg/database"
	"github.com/voemax/passenger-api/pkg/logger"
	corsmiddleware "github.com/voemax/passenger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/voemax/passenger-api/pkg/middleware/requestid"
	"github.com/voemax/passenger-api/pkg/storage"
)

// @title VoeMax Passenger API
// @version 1.0.0
// @description Passenger data edit and approval workflow for the miles marketplace
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Caching is an optimization; the API works without it.
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	}

	transactionRepo := repository.NewTransactionRepository(db)
	passengerRepo := repository.NewPassengerRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := service.NewEditPolicy(cfg.EditPolicy)
	clock := service.SystemClock()
	// Submissions and approval decisions on the same transaction serialize
	// through one lock registry.
	locks := service.NewTransactionLocks()

	notificationSvc := service.NewNotificationService(notificationRepo, cacheRepo, cfg.Notifications, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	metricsSvc := service.NewMetricsService()
	passengerSvc := service.NewPassengerService(transactionRepo, passengerRepo, approvalRepo, auditRepo, notificationSvc, cacheRepo, policy, clock, locks, logr).WithMetrics(metricsSvc)
	approvalSvc := service.NewApprovalService(approvalRepo, passengerRepo, transactionRepo, auditRepo, notificationSvc, cacheRepo, policy, clock, locks, cfg.Approvals, logr).WithMetrics(metricsSvc)
	var exportArchive *storage.ExportArchive
	if cfg.Exports.Enabled {
		exportArchive, err = storage.NewExportArchive(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export archive", "error", err)
		}
	}
	exportSigner := storage.NewDownloadSigner(cfg.Exports.SigningSecret, cfg.Exports.DownloadTTL)
	exportSvc := service.NewExportService(approvalRepo, exportArchive, exportSigner, cfg.Exports, logr)
	tokenSvc := service.NewTokenService(cfg.JWT)

	transactionHandler := handler.NewTransactionHandler(passengerSvc)
	passengerHandler := handler.NewPassengerHandler(passengerSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc, exportSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.GET("/transactions/:id", transactionHandler.Get)
		api.GET("/transactions/:id/passengers", transactionHandler.ListPassengers)
		api.POST("/transactions/:id/passengers", middleware.RequireRoles(models.RoleBuyer), passengerHandler.SubmitNewPassengers)
		api.POST("/transactions/:id/passengers/:passengerId/edits", middleware.RequireRoles(models.RoleBuyer), passengerHandler.SubmitEdit)

		api.GET("/approvals", approvalHandler.List)
		api.GET("/approvals/export", middleware.RequireRoles(models.RoleSeller), approvalHandler.Export)
		api.GET("/approvals/export/download", middleware.RequireRoles(models.RoleSeller), approvalHandler.Download)
		api.GET("/approvals/:id", approvalHandler.Get)
		api.POST("/approvals/:id/decision", middleware.RequireRoles(models.RoleSeller), approvalHandler.Decide)

		api.GET("/notifications", notificationHandler.List)
		api.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
