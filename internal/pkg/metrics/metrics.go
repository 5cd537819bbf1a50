// internal/pkg/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the catalog API and browse sessions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CatalogProducts      prometheus.Gauge
	CatalogReloadsTotal  *prometheus.CounterVec
	CatalogCacheTotal    *prometheus.CounterVec
	CatalogQueryDuration prometheus.Histogram

	BrowseRequestsTotal  *prometheus.CounterVec
	BrowseStaleTotal     prometheus.Counter
	BrowseNoopTotal      *prometheus.CounterVec
	BrowseRetainedHits   prometheus.Counter
	BrowseFetchDuration  prometheus.Histogram
	WorkerTasksProcessed *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_http_requests_total",
				Help: "Total HTTP requests served, by route and status.",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		CatalogProducts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_products",
				Help: "Number of products in the loaded catalog.",
			},
		),
		CatalogReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_reloads_total",
				Help: "Catalog load attempts by outcome.",
			},
			[]string{"outcome"},
		),
		CatalogCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_page_cache_total",
				Help: "Page cache lookups by result.",
			},
			[]string{"result"},
		),
		CatalogQueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_query_duration_seconds",
				Help:    "Time spent filtering and paginating the catalog.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		),
		BrowseRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browse_page_requests_total",
				Help: "Page requests issued by the fetch cache, by kind.",
			},
			[]string{"kind"},
		),
		BrowseStaleTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "browse_stale_responses_total",
				Help: "Page responses discarded because their filters were no longer active.",
			},
		),
		BrowseNoopTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browse_noop_fetches_total",
				Help: "Fetch requests ignored by the fetch cache, by reason.",
			},
			[]string{"reason"},
		),
		BrowseRetainedHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "browse_retained_entry_hits_total",
				Help: "Filter activations served from a retained cache entry.",
			},
		),
		BrowseFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "browse_fetch_duration_seconds",
				Help:    "Page fetch latency seen by the fetch cache.",
				Buckets: prometheus.DefBuckets,
			},
		),
		WorkerTasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_worker_tasks_total",
				Help: "Background tasks processed, by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CatalogProducts,
		m.CatalogReloadsTotal,
		m.CatalogCacheTotal,
		m.CatalogQueryDuration,
		m.BrowseRequestsTotal,
		m.BrowseStaleTotal,
		m.BrowseNoopTotal,
		m.BrowseRetainedHits,
		m.BrowseFetchDuration,
		m.WorkerTasksProcessed,
	)

	return m
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetCatalogSize sets the loaded product count.
func (m *Metrics) SetCatalogSize(n int) {
	if m == nil {
		return
	}
	m.CatalogProducts.Set(float64(n))
}

// IncReload counts a catalog load by outcome ("ok", "unchanged", "error").
func (m *Metrics) IncReload(outcome string) {
	if m == nil {
		return
	}
	m.CatalogReloadsTotal.WithLabelValues(outcome).Inc()
}

// IncCache counts a page cache lookup by result ("hit", "miss", "error").
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CatalogCacheTotal.WithLabelValues(result).Inc()
}

// ObserveQuery records one catalog query duration.
func (m *Metrics) ObserveQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.CatalogQueryDuration.Observe(d.Seconds())
}

// IncBrowseRequest counts a page request issued by a browse session.
func (m *Metrics) IncBrowseRequest(kind string) {
	if m == nil {
		return
	}
	m.BrowseRequestsTotal.WithLabelValues(kind).Inc()
}

// IncBrowseStale counts a discarded stale response.
func (m *Metrics) IncBrowseStale() {
	if m == nil {
		return
	}
	m.BrowseStaleTotal.Inc()
}

// IncBrowseNoop counts an ignored fetch request.
func (m *Metrics) IncBrowseNoop(reason string) {
	if m == nil {
		return
	}
	m.BrowseNoopTotal.WithLabelValues(reason).Inc()
}

// IncBrowseRetainedHit counts a filter activation that reused retained pages.
func (m *Metrics) IncBrowseRetainedHit() {
	if m == nil {
		return
	}
	m.BrowseRetainedHits.Inc()
}

// ObserveBrowseFetch records a page fetch duration.
func (m *Metrics) ObserveBrowseFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.BrowseFetchDuration.Observe(d.Seconds())
}

// IncTask counts a processed background task.
func (m *Metrics) IncTask(taskType, outcome string) {
	if m == nil {
		return
	}
	m.WorkerTasksProcessed.WithLabelValues(taskType, outcome).Inc()
}
