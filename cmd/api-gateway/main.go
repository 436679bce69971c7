package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/edufund-loan-api/api/swagger"
	"github.com/noah-isme/edufund-loan-api/internal/handler"
	"github.com/noah-isme/edufund-loan-api/internal/middleware"
	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/internal/repository"
	"github.com/noah-isme/edufund-loan-api/internal/rules"
	"github.com/noah-isme/edufund-loan-api/internal/service"
	"github.com/noah-isme/edufund-loan-api/pkg/cache"
	"github.com/noah-isme/edufund-loan-api/pkg/config"
	"github.com/noah-isme/edufund-loan-api/pkg/database"
	"github.com/noah-isme/edufund-loan-api/pkg/jobs"
	"github.com/noah-isme/edufund-loan-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edufund-loan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edufund-loan-api/pkg/middleware/requestid"
	"github.com/noah-isme/edufund-loan-api/pkg/storage"
)

// @title EduFund Loan API
// @version 1.0.0
// @description Underwriting decision engine and queue for student loan origination
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, queue summary cache disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	decisionRepo := repository.NewDecisionRepository(db)
	stipulationRepo := repository.NewStipulationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Shared infrastructure services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Underwriting.SummaryCacheTTL, logr, redisClient != nil)
	dispatcher := service.NewEventDispatcher(jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
	}, logr)
	dispatcher.Subscribe(models.EventDecisionRecorded, func(ctx context.Context, event models.DomainEvent) error {
		logr.Sugar().Infow("decision recorded", "application_id", event.ApplicationID, "actor_id", event.ActorID)
		return nil
	})
	dispatcher.Subscribe(models.EventQueueItemAssigned, func(ctx context.Context, event models.DomainEvent) error {
		logr.Sugar().Infow("queue item assigned", "application_id", event.ApplicationID, "actor_id", event.ActorID)
		return nil
	})
	dispatcher.Subscribe(models.EventQueueItemReturned, func(ctx context.Context, event models.DomainEvent) error {
		logr.Sugar().Infow("queue item returned", "application_id", event.ApplicationID, "actor_id", event.ActorID)
		return nil
	})
	dispatcher.Subscribe(models.EventStipulationSatisfied, func(ctx context.Context, event models.DomainEvent) error {
		logr.Sugar().Infow("stipulation satisfied", "application_id", event.ApplicationID, "actor_id", event.ActorID)
		return nil
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Domain services.
	engine := rules.NewEngine()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	queueSvc := service.NewQueueService(queueRepo, applicationRepo, userRepo, dispatcher, cacheSvc, metricsSvc, cfg.Underwriting.SummaryCacheTTL, nil, logr)
	underwritingSvc := service.NewUnderwritingService(engine, decisionRepo, stipulationRepo, applicationRepo, creditRepo, queueRepo, userRepo, dispatcher, metricsSvc, cfg.Underwriting.AutoDecisionEnabled, cfg.Underwriting.StipulationDueDays, nil, logr)
	stipulationSvc := service.NewStipulationService(stipulationRepo, userRepo, dispatcher, nil, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		archive, err := storage.NewLocalStorage(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(queueRepo, decisionRepo, applicationRepo, stipulationRepo, archive, signer, cfg.Exports.LetterFrom, logr)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	queueHandler := handler.NewQueueHandler(queueSvc, nil)
	underwritingHandler := handler.NewUnderwritingHandler(underwritingSvc, nil)
	if exportSvc != nil {
		queueHandler = handler.NewQueueHandler(queueSvc, exportSvc)
		underwritingHandler = handler.NewUnderwritingHandler(underwritingSvc, exportSvc)
	}
	stipulationHandler := handler.NewStipulationHandler(stipulationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/files/:token", underwritingHandler.DownloadLetter)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/stats", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), metricsHandler.Stats)

	underwriters := middleware.RequireRoles(models.RoleUnderwriter, models.RoleAdmin, models.RoleSuperAdmin)
	reviewers := middleware.RequireRoles(models.RoleUnderwriter, models.RoleQCAnalyst, models.RoleAdmin, models.RoleSuperAdmin)

	applications := authed.Group("/applications")
	applications.POST("/:id/evaluate", underwriters, underwritingHandler.Evaluate)
	applications.POST("/:id/decision", underwriters, middleware.Audit(userRepo, models.AuditActionDecisionRecord, "decision"), underwritingHandler.RecordDecision)
	applications.GET("/:id/decision", reviewers, underwritingHandler.GetDecision)
	applications.PATCH("/:id/decision/comments", underwriters, underwritingHandler.AmendComments)
	applications.GET("/:id/decision/letter", reviewers, underwritingHandler.DecisionLetter)
	applications.POST("/:id/decision/letter-link", reviewers, underwritingHandler.DecisionLetterLink)
	applications.GET("/:id/stipulations/readiness", reviewers, stipulationHandler.FundingReadiness)

	queue := authed.Group("/queue")
	queue.POST("", underwriters, queueHandler.Enqueue)
	queue.GET("", reviewers, queueHandler.List)
	queue.GET("/summary", reviewers, queueHandler.Summary)
	queue.GET("/export", reviewers, queueHandler.Export)
	queue.GET("/:id", reviewers, queueHandler.Get)
	queue.POST("/:id/assign", underwriters, middleware.Audit(userRepo, models.AuditActionQueueAssign, "queue"), queueHandler.Assign)
	queue.POST("/:id/start", underwriters, queueHandler.StartReview)
	queue.POST("/:id/return", underwriters, middleware.Audit(userRepo, models.AuditActionQueueReturn, "queue"), queueHandler.Return)

	stipulations := authed.Group("/stipulations")
	stipulations.GET("", reviewers, stipulationHandler.List)
	stipulations.GET("/:id", reviewers, stipulationHandler.Get)
	stipulations.POST("/:id/satisfy", reviewers, stipulationHandler.Satisfy)
	stipulations.POST("/:id/waive", underwriters, stipulationHandler.Waive)

	// Periodic sweep flips pending stipulations past their deadline to EXPIRED.
	go func() {
		ticker := time.NewTicker(cfg.Underwriting.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := stipulationSvc.ExpireOverdue(ctx); err != nil {
					logr.Sugar().Warnw("stipulation expiry sweep failed", "error", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
