// Command browse drives a scripted infinite-scroll session against the
// catalog and prints what a reader would have seen.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ammerola/catalog-be/internal/adapters"
	"github.com/ammerola/catalog-be/internal/adapters/apiclient"
	"github.com/ammerola/catalog-be/internal/browse/listview"
	"github.com/ammerola/catalog-be/internal/browse/viewport"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/pkg/config"
	"github.com/ammerola/catalog-be/internal/pkg/logger"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
)

const (
	sourceAPI   = "api"
	sourceLocal = "local"
)

func main() {
	var (
		source    = flag.String("source", sourceAPI, "Where pages come from (api, local)")
		baseURL   = flag.String("url", "", "Catalog API base URL (defaults to BROWSE_API_URL)")
		location  = flag.String("location", "", "Initial location, e.g. \"/?search=shirt&sizes=M,L\"")
		search    = flag.String("search", "", "Initial search text")
		sizes     = flag.String("sizes", "", "Initial comma-separated sizes")
		step      = flag.Float64("step", 400, "Pixels scrolled per step")
		steps     = flag.Int("steps", 10, "Maximum scroll steps per pass")
		interval  = flag.Duration("interval", 0, "Pause between scroll steps")
		thenFind  = flag.String("then-search", "", "Search text applied after the first pass")
		thenSizes = flag.String("then-sizes", "", "Sizes applied after the first pass")
		logLevel  = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	slogger := logger.SetupLogger(*logLevel, "text").Logger

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, cleanup, err := newFetcher(ctx, cfg, *source, *baseURL, slogger)
	if err != nil {
		slogger.Error("failed to initialize page source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	opts := sessionOptions{
		Location: *location,
		Filters: domain.FilterState{
			Search: *search,
			Sizes:  domain.SplitSizes(*sizes),
		},
		Layout:         layoutFromConfig(cfg.Browse),
		ViewportHeight: float64(cfg.Browse.ViewportHeight),
		Step:           *step,
		Steps:          *steps,
		Interval:       *interval,
		SettleTimeout:  cfg.Browse.RequestTimeout * 2,
		StaleTime:      cfg.Browse.StaleTime,
		MaxRetained:    cfg.Browse.MaxRetainedQueries,
		SearchDebounce: cfg.Browse.SearchDebounce,
		Metrics:        metrics.New(),
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "then-search":
			opts.ThenSearch = thenFind
		case "then-sizes":
			opts.ThenSizes = domain.SplitSizes(*thenSizes)
			if opts.ThenSizes == nil {
				opts.ThenSizes = []string{}
			}
		}
	})

	started := time.Now()
	res, err := runSession(ctx, fetcher, opts, slogger)
	if err != nil {
		slogger.Error("browse session failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	printResult(os.Stdout, res)
	fmt.Printf("Elapsed:         %s\n", time.Since(started).Round(time.Millisecond))
}

func newFetcher(ctx context.Context, cfg *config.Config, source, baseURL string, logger *slog.Logger) (ports.PageFetcher, func(), error) {
	switch source {
	case sourceAPI:
		if baseURL == "" {
			baseURL = cfg.Browse.APIBaseURL
		}
		client, err := apiclient.New(baseURL, logger, apiclient.WithTimeout(cfg.Browse.RequestTimeout))
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil

	case sourceLocal:
		catalog, cleanup, err := adapters.NewCatalogSource(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		service := services.NewCatalogService(catalog, logger)
		if err := service.Load(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		return service, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown source %q", source)
	}
}

func layoutFromConfig(b config.BrowseConfig) listview.Layout {
	layout := listview.DefaultLayout()
	if b.RowHeight > 0 {
		layout.RowHeight = float64(b.RowHeight)
	}
	if b.Columns > 0 {
		layout.Columns = b.Columns
	}
	if b.NearMargin > 0 {
		layout.Near.RootMargin = float64(b.NearMargin)
	}
	if b.FarMargin > 0 {
		layout.Far.RootMargin = float64(b.FarMargin)
	}
	if b.Threshold > 0 {
		layout.Near.Threshold = b.Threshold
		layout.Far.Threshold = b.Threshold
	}
	if layout.Far.RootMargin <= layout.Near.RootMargin {
		layout.Far.RootMargin = layout.Near.RootMargin + viewport.DefaultFarMargin - viewport.DefaultNearMargin
	}
	return layout
}
