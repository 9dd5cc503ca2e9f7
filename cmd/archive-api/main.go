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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/chilahati-archive/archive-api/api/swagger"
	"github.com/chilahati-archive/archive-api/internal/handler"
	internalmiddleware "github.com/chilahati-archive/archive-api/internal/middleware"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/repository"
	"github.com/chilahati-archive/archive-api/internal/service"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	"github.com/chilahati-archive/archive-api/pkg/cache"
	"github.com/chilahati-archive/archive-api/pkg/config"
	"github.com/chilahati-archive/archive-api/pkg/database"
	"github.com/chilahati-archive/archive-api/pkg/jobs"
	"github.com/chilahati-archive/archive-api/pkg/logger"
	corsmiddleware "github.com/chilahati-archive/archive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/chilahati-archive/archive-api/pkg/middleware/requestid"
)

const (
	shutdownTimeout = 15 * time.Second
	publicMaxAge    = time.Minute
	cacheKeyPrefix  = "archive:"
)

// @title Chilahati Archive API
// @version 1.0.0
// @description Community content archive: category browsing, search and item management.
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	registry := taxonomy.Default()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logr.Info("schema applied")
	}

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	switch {
	case err == nil:
		repo := repository.NewCacheRepository(redisClient, cacheKeyPrefix, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo = repo
	case errors.Is(err, cache.ErrDisabled):
		logr.Info("redis disabled, running without cache")
	default:
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	taxonomyCache := service.NewCacheService(cacheRepo, metrics, cfg.Taxonomy.CacheTTL, logr, cacheRepo != nil)
	searchCache := service.NewCacheService(cacheRepo, metrics, cfg.Search.CacheTTL, logr, cacheRepo != nil && cfg.Search.CacheEnabled)

	archiveRepo := repository.NewArchiveRepository(db, registry, repository.RetryPolicy{
		Attempts: cfg.Database.ReadRetries,
		Backoff:  cfg.Database.RetryBackoff,
	})
	auditRepo := repository.NewAuditRepository(db)

	events := service.NewItemEventProcessor(taxonomyCache, auditRepo, metrics, logr)
	queue := jobs.NewQueue("item-events", events.Handle, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.Retries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	})
	queue.Start(context.Background())
	events.Attach(queue)

	identity := service.NewIdentityService(service.IdentityConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})
	taxonomySvc := service.NewTaxonomyService(registry, archiveRepo, taxonomyCache, metrics, cfg.Taxonomy.CacheTTL, logr)
	searchSvc := service.NewSearchService(registry, archiveRepo, searchCache, metrics, service.SearchConfig{
		PageSize: cfg.Search.PageSize,
		CacheTTL: cfg.Search.CacheTTL,
	}, logr)
	archiveSvc := service.NewArchiveService(registry, archiveRepo, events, metrics, service.ArchiveServiceConfig{
		DefaultStatus:     models.ItemStatus(cfg.Archive.DefaultStatus),
		AllowContributors: cfg.Archive.AllowContributors,
	}, logr)

	archiveHandler := handler.NewArchiveHandler(archiveSvc, nil)
	if cfg.Exports.Enabled {
		archiveHandler = handler.NewArchiveHandler(archiveSvc, service.NewExportService(registry, archiveRepo, logr, nil, nil))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	handler.RegisterRoutes(r, handler.Routes{
		Prefix:   cfg.APIPrefix,
		Tokens:   identity,
		Taxonomy: handler.NewTaxonomyHandler(taxonomySvc, publicMaxAge),
		Search:   handler.NewSearchHandler(searchSvc, cfg.Search.PageSize),
		Archive:  archiveHandler,
		Metrics:  handler.NewMetricsHandler(metrics, archiveRepo),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logr.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		logr.Warn("events queue did not drain", zap.Error(err))
	}
	return nil
}
