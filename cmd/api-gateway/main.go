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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edustack/timetable-api/api/swagger"
	"github.com/edustack/timetable-api/internal/handler"
	"github.com/edustack/timetable-api/internal/middleware"
	"github.com/edustack/timetable-api/internal/repository"
	"github.com/edustack/timetable-api/internal/service"
	"github.com/edustack/timetable-api/pkg/cache"
	"github.com/edustack/timetable-api/pkg/config"
	"github.com/edustack/timetable-api/pkg/database"
	"github.com/edustack/timetable-api/pkg/events"
	"github.com/edustack/timetable-api/pkg/jobs"
	"github.com/edustack/timetable-api/pkg/logger"
	corsmiddleware "github.com/edustack/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edustack/timetable-api/pkg/middleware/requestid"
)

// @title Timetable API
// @version 0.1.0
// @description Timetable generation and conflict resolution service
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewRedisPublisher(redisClient, cfg.Events.Channel, logr)
	}

	constraintRepo := repository.NewConstraintRepository(db)
	jobRepo := repository.NewGenerationJobRepository(db)
	versionRepo := repository.NewScheduleVersionRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	adjustmentRepo := repository.NewAdjustmentRepository(db)
	domainRepo := repository.NewDomainRepository(db)
	hintRepo := repository.NewHintRepository(db)

	metricsSvc := service.NewMetricsService()

	constraintSvc := service.NewConstraintService(constraintRepo, validate, logr)
	conflictSvc := service.NewConflictService(conflictRepo, versionRepo, domainRepo, constraintSvc, adjustmentRepo, publisher, metricsSvc, validate, logr)
	versionSvc := service.NewVersionService(versionRepo, conflictSvc, adjustmentRepo, redisClient, cfg.Cache.CurrentVersionTTL, publisher, metricsSvc, validate, logr)
	generationSvc := service.NewGenerationService(
		jobRepo,
		domainRepo,
		constraintSvc,
		versionRepo,
		conflictSvc,
		hintRepo,
		metricsSvc,
		publisher,
		service.SolverSettings{
			TimeBudget:       cfg.Solver.TimeBudget,
			RepairIterations: cfg.Solver.RepairIterations,
			DefaultSeed:      cfg.Solver.DefaultSeed,
		},
		jobs.QueueConfig{Workers: cfg.Jobs.Workers, BufferSize: cfg.Jobs.BufferSize, Logger: logr},
		validate,
		logr,
	)
	optimizationSvc := service.NewOptimizationService(versionSvc, hintRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generationSvc.StartQueue(ctx)
	defer generationSvc.StopQueue()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Constraints:  handler.NewConstraintHandler(constraintSvc),
		Generations:  handler.NewGenerationHandler(generationSvc),
		Versions:     handler.NewVersionHandler(versionSvc, generationSvc),
		Conflicts:    handler.NewConflictHandler(conflictSvc),
		Optimization: handler.NewOptimizationHandler(optimizationSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
