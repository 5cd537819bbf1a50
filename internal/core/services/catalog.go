// internal/core/services/catalog.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
)

// PageCachePrefix prefixes every cached listing page.
const PageCachePrefix = "products"

// ErrCatalogNotLoaded is returned until the first successful load.
var ErrCatalogNotLoaded = errors.New("catalog not loaded")

// CatalogService serves queries over the in-memory product collection
type CatalogService struct {
	source   ports.CatalogSource
	cache    ports.CacheRepository
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	group    singleflight.Group

	mu       sync.RWMutex
	products []domain.Product
	index    map[int]int
	options  *domain.FilterOptions
	version  string
	loadedAt time.Time
}

// Statically assert that *CatalogService implements the service and fetcher ports.
var (
	_ ports.CatalogService = (*CatalogService)(nil)
	_ ports.PageFetcher    = (*CatalogService)(nil)
)

// CatalogOption configures a CatalogService
type CatalogOption func(*CatalogService)

// WithPageCache caches rendered listing pages. A nil cache disables caching.
func WithPageCache(cache ports.CacheRepository, ttl time.Duration) CatalogOption {
	return func(s *CatalogService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithMetrics records catalog metrics.
func WithMetrics(m *metrics.Metrics) CatalogOption {
	return func(s *CatalogService) {
		s.metrics = m
	}
}

// NewCatalogService creates a new catalog service. Call Load before serving.
func NewCatalogService(source ports.CatalogSource, logger *slog.Logger, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{
		source:   source,
		cacheTTL: 10 * time.Minute,
		logger:   logger.With(slog.String("service", "catalog")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load performs the initial catalog load
func (s *CatalogService) Load(ctx context.Context) error {
	_, err := s.Reload(ctx)
	return err
}

// Reload re-reads the catalog from its source. On failure the previously
// loaded collection stays in place.
func (s *CatalogService) Reload(ctx context.Context) (*ports.ReloadResult, error) {
	raw, err := s.source.Load(ctx)
	if err != nil {
		s.metrics.IncReload("error")
		s.logger.ErrorContext(ctx, "failed to load catalog",
			slog.String("source", s.source.Name()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load catalog from %s: %w", s.source.Name(), err)
	}

	products, skipped := s.validate(ctx, raw)
	version := catalogVersion(products)

	index := make(map[int]int, len(products))
	for i := range products {
		index[products[i].ID] = i
	}
	options := buildFilterOptions(products)

	s.mu.Lock()
	result := &ports.ReloadResult{
		Source:          s.source.Name(),
		PreviousVersion: s.version,
		Version:         version,
		PreviousCount:   len(s.products),
		Count:           len(products),
		Skipped:         skipped,
		Changed:         s.version != version,
	}
	s.products = products
	s.index = index
	s.options = options
	s.version = version
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.metrics.SetCatalogSize(len(products))
	if result.Changed {
		s.metrics.IncReload("ok")
	} else {
		s.metrics.IncReload("unchanged")
	}

	s.logger.InfoContext(ctx, "catalog loaded",
		slog.String("source", result.Source),
		slog.String("version", version),
		slog.Int("count", len(products)),
		slog.Int("skipped", skipped),
		slog.Bool("changed", result.Changed))

	return result, nil
}

func (s *CatalogService) validate(ctx context.Context, raw []domain.Product) ([]domain.Product, int) {
	products := make([]domain.Product, 0, len(raw))
	seen := make(map[int]struct{}, len(raw))
	skipped := 0

	for i := range raw {
		if err := raw[i].Validate(); err != nil {
			skipped++
			s.logger.WarnContext(ctx, "skipping invalid product",
				slog.Int("position", i),
				slog.Int("id", raw[i].ID),
				slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[raw[i].ID]; dup {
			skipped++
			s.logger.WarnContext(ctx, "skipping duplicate product id",
				slog.Int("position", i),
				slog.Int("id", raw[i].ID))
			continue
		}
		seen[raw[i].ID] = struct{}{}
		products = append(products, raw[i])
	}

	return products, skipped
}

// ListProducts returns one page of the filtered catalog, served from the
// page cache when one is configured.
func (s *CatalogService) ListProducts(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidPage, page)
	}

	products, version, ok := s.snapshot()
	if !ok {
		return nil, ErrCatalogNotLoaded
	}
	filters = filters.Normalize()

	if s.cache == nil {
		return s.query(products, filters, page)
	}

	key := PageCacheKey(version, filters, page)
	// The shared lookup outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		var cached domain.Page
		missed := false
		err := s.cache.GetOrSet(shared, key, &cached, func() (interface{}, error) {
			missed = true
			return s.query(products, filters, page)
		}, s.cacheTTL)
		if err != nil {
			s.metrics.IncCache("error")
			s.logger.WarnContext(shared, "page cache unavailable, querying directly",
				slog.String("key", key),
				slog.String("error", err.Error()))
			return s.query(products, filters, page)
		}
		if missed {
			s.metrics.IncCache("miss")
		} else {
			s.metrics.IncCache("hit")
		}
		return &cached, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Page), nil
	}
}

// FetchPage lets the service act as an in-process page fetcher.
func (s *CatalogService) FetchPage(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error) {
	return s.ListProducts(ctx, filters, page)
}

func (s *CatalogService) query(products []domain.Product, filters domain.FilterState, page int) (*domain.Page, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveQuery(time.Since(start)) }()
	return Query(products, filters, page)
}

// GetProduct returns a single product by id
func (s *CatalogService) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		return nil, ErrCatalogNotLoaded
	}
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}
	product := s.products[i]
	return &product, nil
}

// FilterOptions returns the facet values across the whole catalog
func (s *CatalogService) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.options == nil {
		return nil, ErrCatalogNotLoaded
	}
	opts := *s.options
	return &opts, nil
}

// ExportProducts returns every product matching filters
func (s *CatalogService) ExportProducts(ctx context.Context, filters domain.FilterState) ([]domain.Product, error) {
	products, _, ok := s.snapshot()
	if !ok {
		return nil, ErrCatalogNotLoaded
	}
	return slices.Clone(Filter(products, filters)), nil
}

// Stats summarizes the loaded catalog
func (s *CatalogService) Stats() ports.CatalogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ports.CatalogStats{
		Source:   s.source.Name(),
		Version:  s.version,
		Count:    len(s.products),
		LoadedAt: s.loadedAt,
		Loaded:   s.index != nil,
	}
}

// snapshot returns the current collection. The slice is replaced, never
// mutated, so callers may read it without holding the lock.
func (s *CatalogService) snapshot() ([]domain.Product, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products, s.version, s.index != nil
}

// PageCacheKey is the cache key of one listing page for a catalog version.
func PageCacheKey(version string, filters domain.FilterState, page int) string {
	return fmt.Sprintf("%s:%s:%s:%d", PageCachePrefix, version, filters.Fingerprint(), page)
}

// PageCachePattern matches every cached page of a catalog version.
func PageCachePattern(version string) string {
	return fmt.Sprintf("%s:%s:*", PageCachePrefix, version)
}

func catalogVersion(products []domain.Product) string {
	data, err := json.Marshal(products)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func buildFilterOptions(products []domain.Product) *domain.FilterOptions {
	categories := make(map[string]struct{})
	brands := make(map[string]struct{})
	colors := make(map[string]struct{})
	var priceRange *domain.PriceRange

	for i := range products {
		p := &products[i]
		if p.Category != "" {
			categories[p.Category] = struct{}{}
		}
		if p.Brand != "" {
			brands[p.Brand] = struct{}{}
		}
		if p.Color != "" {
			colors[p.Color] = struct{}{}
		}
		price, ok := p.EffectivePrice()
		if !ok {
			continue
		}
		if priceRange == nil {
			priceRange = &domain.PriceRange{Min: price, Max: price}
			continue
		}
		if price.LessThan(priceRange.Min) {
			priceRange.Min = price
		}
		if price.GreaterThan(priceRange.Max) {
			priceRange.Max = price
		}
	}

	return &domain.FilterOptions{
		Categories:    sortedKeys(categories),
		Brands:        sortedKeys(brands),
		Colors:        sortedKeys(colors),
		Sizes:         collectSizes(products),
		PriceRange:    priceRange,
		TotalProducts: len(products),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
