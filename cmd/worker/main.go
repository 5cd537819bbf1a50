// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/catalog-be/internal/adapters"
	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/pkg/config"
	"github.com/ammerola/catalog-be/internal/pkg/logger"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
	"github.com/ammerola/catalog-be/internal/workers"
)

func main() {
	// Setup logger
	slogger := logger.SetupLogger("info", "json")

	// Load configuration
	cfg, err := config.Load(slogger.Logger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Reconfigure logger with loaded settings
	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	cfg.WatchLogLevel(slogger.Logger, slogger.SetLevel)
	log := slogger.Logger
	log.Info("starting worker",
		slog.String("environment", cfg.App.Environment),
		slog.String("redis_addr", cfg.Asynq.RedisAddr),
		slog.String("catalog_source", cfg.Catalog.Source))

	if !cfg.Redis.Enabled {
		log.Error("worker requires REDIS_ENABLED=true, it only maintains the page cache")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sm, err := config.NewSecretsManager(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create secrets manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.ApplySecrets(ctx, sm); err != nil {
		log.Error("failed to apply secrets", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Catalog source and service
	source, cleanup, err := adapters.NewCatalogSource(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize catalog source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

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
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.New()
	cache := redis_a.NewCache(redisClient, cfg.Redis.TTL, log)
	catalogService := services.NewCatalogService(source, log,
		services.WithPageCache(cache, cfg.Redis.TTL),
		services.WithMetrics(m),
	)
	if err := catalogService.Load(ctx); err != nil {
		log.Error("failed to load catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Asynq.RedisAddr,
		Password: cfg.Asynq.RedisPassword,
		DB:       cfg.Asynq.RedisDB,
	}

	// Create Asynq server
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:              cfg.Asynq.Concurrency,
			Queues:                   cfg.Asynq.Queues,
			StrictPriority:           cfg.Asynq.StrictPriority,
			ErrorHandler:             asynq.ErrorHandlerFunc(handleError),
			RetryDelayFunc:           exponentialBackoff,
			ShutdownTimeout:          cfg.Asynq.ShutdownTimeout,
			HealthCheckFunc:          healthCheck,
			HealthCheckInterval:      cfg.Asynq.HealthCheckInterval,
			DelayedTaskCheckInterval: cfg.Asynq.DelayedTaskCheckTime,
			Logger:                   newAsynqLogger(log),
		},
	)

	mux := asynq.NewServeMux()
	workers.NewCacheProcessor(catalogService, cache, m, log).Register(mux)

	// Periodic warm
	var scheduler *asynq.Scheduler
	if cfg.Asynq.WarmSchedule != "" {
		scheduler, err = startScheduler(redisOpt, cfg, log)
		if err != nil {
			log.Error("failed to start scheduler", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var metricsServer *http.Server
	if cfg.Asynq.MetricsAddr != "" {
		metricsServer = startMetricsServer(cfg.Asynq.MetricsAddr, m, log)
	}

	if err := srv.Start(mux); err != nil {
		log.Error("failed to run worker server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("worker started successfully",
		slog.Int("concurrency", cfg.Asynq.Concurrency),
		slog.Any("queues", cfg.Asynq.Queues))

	<-ctx.Done()
	log.Info("shutdown signal received")
	srv.Shutdown()

	if scheduler != nil {
		scheduler.Shutdown()
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	log.Info("worker shutdown complete")
}

func startScheduler(redisOpt asynq.RedisClientOpt, cfg *config.Config, log *slog.Logger) (*asynq.Scheduler, error) {
	pages := cfg.Catalog.WarmPages
	if pages < 1 {
		pages = 1
	}
	task, err := workers.NewWarmTask(pages, true)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   newAsynqLogger(log),
		Location: time.UTC,
	})
	entryID, err := scheduler.Register(cfg.Asynq.WarmSchedule, task,
		asynq.MaxRetry(cfg.Asynq.RetryMax),
		asynq.Unique(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to register warm schedule %q: %w", cfg.Asynq.WarmSchedule, err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, err
	}

	log.Info("scheduled periodic cache warm",
		slog.String("entry_id", entryID),
		slog.String("schedule", cfg.Asynq.WarmSchedule),
		slog.Int("pages", pages))
	return scheduler, nil
}

func startMetricsServer(addr string, m *metrics.Metrics, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	return server
}

func handleError(ctx context.Context, task *asynq.Task, err error) {
	slog.ErrorContext(ctx, "task processing failed",
		slog.String("type", task.Type()),
		slog.String("payload", string(task.Payload())),
		slog.String("error", err.Error()))
}

func exponentialBackoff(n int, e error, t *asynq.Task) time.Duration {
	baseDelay := time.Second
	maxDelay := 10 * time.Minute
	delay := baseDelay * time.Duration(1<<uint(n))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func healthCheck(err error) {
	if err != nil {
		slog.Error("worker health check failed", slog.String("error", err.Error()))
	}
}

// asynqLogger adapts slog for Asynq
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) *asynqLogger {
	return &asynqLogger{
		logger: logger.With(slog.String("component", "asynq")),
	}
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
