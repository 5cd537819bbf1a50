package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

const statsCacheTTL = 5 * time.Minute

// StatsHandler serves the catalog summary
type StatsHandler struct {
	service ports.CatalogService
	cache   ports.CacheRepository
	logger  *slog.Logger
}

// NewStatsHandler creates a new stats handler. cache may be nil.
func NewStatsHandler(service ports.CatalogService, cache ports.CacheRepository, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		cache:   cache,
		logger:  logger.With(slog.String("handler", "stats")),
	}
}

// StatsData is the catalog summary payload
type StatsData struct {
	Catalog      ports.CatalogStats `json:"catalog"`
	Summary      StatsSummary       `json:"summary"`
	Categories   []FacetCount       `json:"categories"`
	Brands       []FacetCount       `json:"brands"`
	Sizes        []FacetCount       `json:"sizes"`
	Availability []FacetCount       `json:"availability"`
	Timestamp    time.Time          `json:"timestamp"`
}

// StatsSummary holds catalog-wide totals
type StatsSummary struct {
	TotalProducts  int             `json:"total_products"`
	WithSizes      int             `json:"with_sizes"`
	OnSale         int             `json:"on_sale"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	TotalListValue decimal.Decimal `json:"total_list_value"`
}

// FacetCount is one facet value and how many products carry it
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// GetStats handles GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	catalog := h.service.Stats()

	if h.cache == nil || !catalog.Loaded {
		stats, err := h.loadStats(ctx, catalog)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to load stats", slog.String("error", err.Error()))
			respondError(w, h.logger, http.StatusInternalServerError, "Failed to load stats")
			return
		}
		respondData(w, h.logger, stats)
		return
	}

	cacheKey := redis_a.BuildKey(redis_a.PrefixStats, catalog.Version)
	var stats StatsData

	err := h.cache.GetOrSet(ctx, cacheKey, &stats, func() (interface{}, error) {
		return h.loadStats(ctx, catalog)
	}, statsCacheTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load stats", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	respondData(w, h.logger, stats)
}

func (h *StatsHandler) loadStats(ctx context.Context, catalog ports.CatalogStats) (*StatsData, error) {
	products, err := h.service.ExportProducts(ctx, domain.FilterState{})
	if err != nil {
		return nil, err
	}
	stats := BuildStats(products)
	stats.Catalog = catalog
	return stats, nil
}

// BuildStats summarizes a product list
func BuildStats(products []domain.Product) *StatsData {
	stats := &StatsData{
		Timestamp: time.Now().UTC(),
	}
	stats.Summary.TotalProducts = len(products)

	categories := make(map[string]int)
	brands := make(map[string]int)
	sizes := make(map[string]int)
	availability := make(map[string]int)

	priced := 0
	total := decimal.Zero
	for i := range products {
		p := &products[i]

		if p.Category != "" {
			categories[p.Category]++
		}
		if p.Brand != "" {
			brands[p.Brand]++
		}
		if p.Availability != "" {
			availability[p.Availability]++
		}

		tokens := p.SizeTokens()
		if len(tokens) > 0 {
			stats.Summary.WithSizes++
		}
		for _, s := range tokens {
			sizes[s]++
		}

		if price, ok := p.EffectivePrice(); ok {
			total = total.Add(price)
			priced++
		}
		if p.ListPrice != "" {
			if list, err := domain.ParsePrice(p.ListPrice); err == nil {
				stats.Summary.TotalListValue = stats.Summary.TotalListValue.Add(list)
				if p.SalePrice != "" {
					if sale, err := domain.ParsePrice(p.SalePrice); err == nil && sale.LessThan(list) {
						stats.Summary.OnSale++
					}
				}
			}
		}
	}

	if priced > 0 {
		stats.Summary.AveragePrice = total.Div(decimal.NewFromInt(int64(priced))).Round(2)
	}

	stats.Categories = facetCounts(categories)
	stats.Brands = facetCounts(brands)
	stats.Sizes = facetCounts(sizes)
	stats.Availability = facetCounts(availability)

	return stats
}

// facetCounts orders by count descending, then value
func facetCounts(m map[string]int) []FacetCount {
	out := make([]FacetCount, 0, len(m))
	for value, count := range m {
		out = append(out, FacetCount{Value: value, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
