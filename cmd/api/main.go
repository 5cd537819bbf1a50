// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/catalog-be/internal/adapters"
	"github.com/ammerola/catalog-be/internal/adapters/catalogfile"
	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/handlers"
	"github.com/ammerola/catalog-be/internal/handlers/middleware"
	"github.com/ammerola/catalog-be/internal/pkg/config"
	"github.com/ammerola/catalog-be/internal/pkg/logger"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
	"github.com/ammerola/catalog-be/internal/workers"
)

// Build information injected at compile time
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	slogger := logger.SetupLogger("info", "json")

	slogger.Info("starting catalog API",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("go_version", GoVersion),
	)

	cfg, err := config.Load(slogger.Logger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Reconfigure logger with loaded settings
	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	cfg.WatchLogLevel(slogger.Logger, slogger.SetLevel)
	slogger.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.String("log_level", cfg.App.LogLevel),
		slog.String("catalog_source", cfg.Catalog.Source),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg, slogger)
	if err != nil {
		slogger.Error("failed to initialize dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer deps.cleanup()

	if fileSource, ok := deps.source.(*catalogfile.Source); ok && cfg.Catalog.Watch {
		go func() {
			err := fileSource.Watch(ctx, func(ctx context.Context) {
				_, _ = deps.adminHandler.ReloadCatalog(ctx)
			})
			if err != nil {
				slogger.Error("catalog watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	server := setupHTTPServer(ctx, cfg, deps, slogger)

	serverErrors := make(chan error, 1)
	go func() {
		slogger.Info("starting HTTP server",
			slog.String("address", cfg.GetServerAddress()),
			slog.Bool("tls", cfg.Server.TLSEnabled),
		)

		if cfg.Server.TLSEnabled {
			serverErrors <- server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("server error", slog.String("error", err.Error()))
		}
	case <-ctx.Done():
		slogger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
			server.Close()
		}

		slogger.Info("server shutdown complete")
	}
}

// dependencies holds all application dependencies
type dependencies struct {
	metrics        *metrics.Metrics
	source         ports.CatalogSource
	sourceCleanup  func()
	redisClient    *redis.Client
	redisCache     ports.CacheRepository
	asynqClient    *asynq.Client
	asynqInspector *asynq.Inspector
	catalogService *services.CatalogService
	productHandler *handlers.ProductsHandler
	exportHandler  *handlers.ExportHandler
	statsHandler   *handlers.StatsHandler
	adminHandler   *handlers.AdminHandler
	healthHandler  *handlers.HealthHandler
}

func (d *dependencies) cleanup() {
	if d.asynqClient != nil {
		d.asynqClient.Close()
	}
	if d.asynqInspector != nil {
		d.asynqInspector.Close()
	}
	if d.redisClient != nil {
		d.redisClient.Close()
	}
	if d.sourceCleanup != nil {
		d.sourceCleanup()
	}
}

func initializeDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger) (*dependencies, error) {
	deps := &dependencies{metrics: metrics.New()}
	slogger := log.Logger

	sm, err := config.NewSecretsManager(ctx, cfg, slogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	if err := cfg.ApplySecrets(ctx, sm); err != nil {
		return nil, err
	}

	source, cleanup, err := adapters.NewCatalogSource(ctx, cfg, slogger)
	if err != nil {
		return nil, err
	}
	deps.source = source
	deps.sourceCleanup = cleanup

	if cfg.Redis.Enabled {
		slogger.Info("connecting to Redis",
			slog.String("host", cfg.Redis.Host),
			slog.String("port", cfg.Redis.Port),
		)

		redisClient := redis.NewClient(&redis.Options{
			Addr:            cfg.GetRedisAddress(),
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			MaxRetries:      cfg.Redis.MaxRetries,
			MinRetryBackoff: cfg.Redis.MinRetryBackoff,
			MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
			DialTimeout:     cfg.Redis.DialTimeout,
			ReadTimeout:     cfg.Redis.ReadTimeout,
			WriteTimeout:    cfg.Redis.WriteTimeout,
			PoolSize:        cfg.Redis.PoolSize,
			MinIdleConns:    cfg.Redis.MinIdleConns,
			ConnMaxLifetime: cfg.Redis.MaxConnAge,
			PoolTimeout:     cfg.Redis.PoolTimeout,
			ConnMaxIdleTime: cfg.Redis.IdleTimeout,
		})
		deps.redisClient = redisClient

		if err := redisClient.Ping(ctx).Err(); err != nil {
			deps.cleanup()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		deps.redisCache = redis_a.NewCache(redisClient, cfg.Redis.TTL, slogger)
	}

	deps.catalogService = services.NewCatalogService(source, slogger,
		services.WithPageCache(deps.redisCache, cfg.Redis.TTL),
		services.WithMetrics(deps.metrics),
	)
	if err := deps.catalogService.Load(ctx); err != nil {
		deps.cleanup()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var (
		tasks     ports.TaskQueue
		inspector handlers.QueueInspector
	)
	if cfg.Asynq.Enabled {
		slogger.Info("initializing Asynq client")

		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Asynq.RedisAddr,
			Password: cfg.Asynq.RedisPassword,
			DB:       cfg.Asynq.RedisDB,
		}
		deps.asynqClient = asynq.NewClient(redisOpt)
		deps.asynqInspector = asynq.NewInspector(redisOpt)

		tasks = workers.NewEnqueuer(deps.asynqClient, "default", cfg.Asynq.RetryMax, slogger)
		inspector = deps.asynqInspector
	}

	warmPages := 0
	if cfg.Catalog.WarmOnReload {
		warmPages = cfg.Catalog.WarmPages
	}

	deps.productHandler = handlers.NewProductsHandler(deps.catalogService, slogger)
	deps.exportHandler = handlers.NewExportHandler(deps.catalogService, deps.redisCache, slogger)
	deps.statsHandler = handlers.NewStatsHandler(deps.catalogService, deps.redisCache, slogger)
	deps.adminHandler = handlers.NewAdminHandler(deps.catalogService, tasks, warmPages, slogger)
	deps.healthHandler = handlers.NewHealthHandler(deps.catalogService, deps.redisCache, inspector, cfg, slogger)

	if tasks != nil && warmPages > 0 {
		if err := tasks.EnqueueCacheWarm(ctx, warmPages, true); err != nil {
			slogger.Warn("failed to enqueue startup cache warm", slog.String("error", err.Error()))
		}
	}

	slogger.Info("all dependencies initialized successfully")
	return deps, nil
}

func setupHTTPServer(ctx context.Context, cfg *config.Config, deps *dependencies, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()

	routes := handlers.Routes{
		Products: deps.productHandler,
		Export:   deps.exportHandler,
		Stats:    deps.statsHandler,
		Admin:    deps.adminHandler,
		Logger:   log.Logger,
	}
	if cfg.Server.EnableHealthCheck {
		routes.Health = deps.healthHandler
	}
	if cfg.Server.EnableMetrics {
		routes.Metrics = promhttp.HandlerFor(deps.metrics.Registry, promhttp.HandlerOpts{
			Registry: deps.metrics.Registry,
		})
	}
	handlers.RegisterRoutes(mux, routes)

	if cfg.Server.EnablePprof && cfg.IsDevelopment() {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	}

	// Outermost first. Metrics must wrap the mux directly to see r.Pattern.
	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Recovery(log.Logger),
	}
	if cfg.Security.RateLimitRequests > 0 {
		chain = append(chain, middleware.RateLimit(ctx, cfg.Security.RateLimitRequests, cfg.Security.RateLimitDuration))
	}
	if len(cfg.Security.AllowedOrigins) > 0 {
		chain = append(chain, middleware.CORS(cfg.Security.AllowedOrigins))
	}
	if cfg.Security.SecureHeaders {
		chain = append(chain, middleware.SecureHeaders)
	}
	if cfg.Server.EnableCompression {
		chain = append(chain, middleware.Compression)
	}
	if cfg.Server.WriteTimeout > time.Second {
		chain = append(chain, middleware.Timeout(cfg.Server.WriteTimeout-time.Second))
	}
	chain = append(chain, middleware.Metrics(deps.metrics))

	return &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        middleware.Chain(mux, chain...),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(log.Handler(), slog.LevelError),
	}
}
