// internal/workers/cache_processor.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
)

const warmLockTTL = 5 * time.Minute

// CacheProcessor handles page cache maintenance tasks
type CacheProcessor struct {
	service ports.CatalogService
	cache   ports.CacheRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCacheProcessor creates a new cache processor. The service must share
// cache with the API so warmed pages land under the keys the API reads.
func NewCacheProcessor(service ports.CatalogService, cache ports.CacheRepository, m *metrics.Metrics, logger *slog.Logger) *CacheProcessor {
	return &CacheProcessor{
		service: service,
		cache:   cache,
		metrics: m,
		logger:  logger.With(slog.String("processor", "cache")),
	}
}

// Register mounts the processor's handlers on mux
func (p *CacheProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCatalogWarm, p.ProcessWarm)
	mux.HandleFunc(TypeCatalogPurge, p.ProcessPurge)
}

// ProcessWarm renders the leading unfiltered pages, and page 1 of every
// size, so they are served from the cache.
func (p *CacheProcessor) ProcessWarm(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload WarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.metrics.IncTask(TypeCatalogWarm, OutcomeFailure)
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	reload, err := p.service.Reload(ctx)
	if err != nil {
		p.metrics.IncTask(TypeCatalogWarm, OutcomeFailure)
		return fmt.Errorf("failed to refresh catalog before warm: %w", err)
	}
	version := reload.Version

	lockKey := redis_a.BuildKey(redis_a.PrefixLock, "warm", version)
	acquired, err := p.cache.SetNX(ctx, lockKey, time.Now().Unix(), warmLockTTL)
	if err != nil {
		p.metrics.IncTask(TypeCatalogWarm, OutcomeFailure)
		return fmt.Errorf("failed to acquire warm lock: %w", err)
	}
	if !acquired {
		p.logger.InfoContext(ctx, "warm already running for version, skipping",
			slog.String("version", version))
		p.metrics.IncTask(TypeCatalogWarm, OutcomeSkipped)
		return nil
	}
	defer func() {
		if err := p.cache.Delete(context.WithoutCancel(ctx), lockKey); err != nil {
			p.logger.WarnContext(ctx, "failed to release warm lock",
				slog.String("key", lockKey),
				slog.String("error", err.Error()))
		}
	}()

	p.logger.InfoContext(ctx, "warming page cache",
		slog.String("version", version),
		slog.Int("pages", payload.Pages),
		slog.Bool("include_sizes", payload.IncludeSizes))

	result := WarmResult{Version: version}
	for page := 1; page <= payload.Pages; page++ {
		res, err := p.service.ListProducts(ctx, domain.FilterState{}, page)
		if err != nil {
			p.metrics.IncTask(TypeCatalogWarm, OutcomeFailure)
			return fmt.Errorf("failed to warm page %d: %w", page, err)
		}
		result.PagesWarmed++
		if !res.HasNextPage {
			break
		}
	}

	if payload.IncludeSizes {
		opts, err := p.service.FilterOptions(ctx)
		if err != nil {
			p.metrics.IncTask(TypeCatalogWarm, OutcomeFailure)
			return fmt.Errorf("failed to load sizes: %w", err)
		}
		for _, size := range opts.Sizes {
			if _, err := p.service.ListProducts(ctx, domain.FilterState{Sizes: []string{size}}, 1); err != nil {
				p.metrics.IncTask(TypeCatalogWarm, OutcomeFailure)
				return fmt.Errorf("failed to warm size %q: %w", size, err)
			}
			result.SizesWarmed++
		}
	}

	result.ProcessingTime = time.Since(start).String()
	p.metrics.IncTask(TypeCatalogWarm, OutcomeSuccess)

	if w := t.ResultWriter(); w != nil {
		if b, err := json.Marshal(result); err == nil {
			_, _ = w.Write(b)
		}
	}

	p.logger.InfoContext(ctx, "page cache warmed",
		slog.String("version", version),
		slog.Int("pages_warmed", result.PagesWarmed),
		slog.Int("sizes_warmed", result.SizesWarmed),
		slog.String("duration", result.ProcessingTime))

	return nil
}

// ProcessPurge removes every cached entry derived from a catalog version
func (p *CacheProcessor) ProcessPurge(ctx context.Context, t *asynq.Task) error {
	var payload PurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.metrics.IncTask(TypeCatalogPurge, OutcomeFailure)
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.Version == "" {
		p.metrics.IncTask(TypeCatalogPurge, OutcomeFailure)
		return fmt.Errorf("purge payload has no version: %w", asynq.SkipRetry)
	}

	live := p.service.Stats().Version
	if reload, err := p.service.Reload(ctx); err != nil {
		p.logger.WarnContext(ctx, "failed to refresh catalog before purge",
			slog.String("error", err.Error()))
	} else {
		live = reload.Version
	}
	if live == payload.Version {
		p.logger.InfoContext(ctx, "refusing to purge the live catalog version",
			slog.String("version", payload.Version))
		p.metrics.IncTask(TypeCatalogPurge, OutcomeSkipped)
		return nil
	}

	patterns := []string{
		services.PageCachePattern(payload.Version),
		redis_a.BuildKey(redis_a.PrefixExport, "*", payload.Version, "*"),
		redis_a.BuildKey(redis_a.PrefixStats, payload.Version),
	}

	var errs []error
	total := 0
	for _, pattern := range patterns {
		n, err := p.cache.DeletePattern(ctx, pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", pattern, err))
			continue
		}
		total += n
	}
	if err := errors.Join(errs...); err != nil {
		p.metrics.IncTask(TypeCatalogPurge, OutcomeFailure)
		return err
	}

	p.metrics.IncTask(TypeCatalogPurge, OutcomeSuccess)
	p.logger.InfoContext(ctx, "page cache purged",
		slog.String("version", payload.Version),
		slog.Int("keys_deleted", total))

	return nil
}
