// Package listview composes the filter store, the fetch cache and the
// viewport triggers into a rendered product list.
package listview

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ammerola/catalog-be/internal/browse/fetchcache"
	"github.com/ammerola/catalog-be/internal/browse/filterstate"
	"github.com/ammerola/catalog-be/internal/browse/viewport"
	"github.com/ammerola/catalog-be/internal/core/domain"
)

// Status summarizes a frame for display
type Status string

const (
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusLoadingMore  Status = "loading_more"
	StatusEnd          Status = "end"
	StatusEmpty        Status = "empty"
	StatusError        Status = "error"
	StatusErrorLoading Status = "error_loading_more"
)

// Layout places products on a grid
type Layout struct {
	RowHeight float64
	Columns   int
	// Near requests the next page, Far prefetches one page ahead.
	Near viewport.Options
	Far  viewport.Options
}

// DefaultLayout is a two column grid with the default trigger margins.
func DefaultLayout() Layout {
	return Layout{
		RowHeight: 320,
		Columns:   2,
		Near:      viewport.Options{RootMargin: viewport.DefaultNearMargin, Threshold: viewport.DefaultThreshold},
		Far:       viewport.Options{RootMargin: viewport.DefaultFarMargin, Threshold: viewport.DefaultThreshold},
	}
}

// ContentHeight returns the height taken by n products.
func (l Layout) ContentHeight(n int) float64 {
	cols := max(l.Columns, 1)
	rows := (n + cols - 1) / cols
	return float64(rows) * l.RowHeight
}

// Frame is one rendered state of the list
type Frame struct {
	Seq     uint64
	Key     string
	Filters domain.FilterState
	Status  Status

	Products      []domain.Product
	TotalCount    int
	Sizes         []string
	ContentHeight float64
	HasNextPage   bool
	Prefetched    bool

	Err error
}

// Renderer draws frames. Render is called with the view's lock held and must
// not call back into the View.
type Renderer interface {
	Render(Frame)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(Frame)

// Render calls f.
func (f RendererFunc) Render(frame Frame) {
	f(frame)
}

// View is the infinite list for one browse session
type View struct {
	store    *filterstate.Store
	cache    *fetchcache.Cache
	observer *viewport.Observer
	layout   Layout
	renderer Renderer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// content holds the float64 bits of the rendered content height so
	// sentinels can be read without the view lock.
	content atomic.Uint64

	mu          sync.Mutex
	key         string
	query       *fetchcache.Query
	near, far   *viewport.Trigger
	lastSeq     uint64
	lastFetch   bool
	lastHasNext bool
	frame       Frame
	closed      bool

	stopStore func()
	stopCache func()
}

// New wires a view and activates the store's current filters.
func New(store *filterstate.Store, cache *fetchcache.Cache, observer *viewport.Observer, layout Layout, renderer Renderer, logger *slog.Logger) *View {
	if layout.Columns <= 0 {
		layout.Columns = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	v := &View{
		store:    store,
		cache:    cache,
		observer: observer,
		layout:   layout,
		renderer: renderer,
		logger:   logger.With(slog.String("component", "listview")),
		ctx:      ctx,
		cancel:   cancel,
	}

	sentinel := viewport.SentinelFunc(v.sentinel)
	v.near = observer.Observe(sentinel, layout.Near, nil)
	v.far = observer.Observe(sentinel, layout.Far, nil)

	v.stopCache = cache.Subscribe(v.onSnapshot)
	v.stopStore = store.Subscribe(v.onFilters)
	v.onFilters(store.Filters())

	return v
}

// Frame returns the last rendered frame
func (v *View) Frame() Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// Query returns the query of the active filters
func (v *View) Query() *fetchcache.Query {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// Retry re-issues the failed request of the active filters.
func (v *View) Retry(ctx context.Context) bool {
	q := v.Query()
	if q == nil {
		return false
	}
	return q.Retry(ctx)
}

// Close detaches the view from its collaborators.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.stopStore()
	v.stopCache()
	v.near.Stop()
	v.far.Stop()
	v.cancel()
}

func (v *View) sentinel() viewport.Bounds {
	h := math.Float64frombits(v.content.Load())
	return viewport.Bounds{Top: h, Bottom: h}
}

func (v *View) onFilters(filters domain.FilterState) {
	key := filters.Normalize().Fingerprint()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.key = key
	v.mu.Unlock()

	// Get publishes synchronously, so the key must be set first.
	q := v.cache.Get(v.ctx, filters)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.key != key {
		return
	}
	if v.query != q {
		v.logger.Debug("filters activated", slog.String("key", key))
		v.query = q
		v.bind(q)
	}
}

func (v *View) onSnapshot(s fetchcache.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || s.Key != v.key || s.Seq <= v.lastSeq {
		return
	}
	v.lastSeq = s.Seq

	frame := v.buildFrame(s)
	v.frame = frame
	v.content.Store(math.Float64bits(frame.ContentHeight))

	if v.query != nil && v.query.Key() == s.Key &&
		(s.IsFetching != v.lastFetch || s.HasNextPage != v.lastHasNext) {
		v.bind(v.query)
	}
	v.lastFetch = s.IsFetching
	v.lastHasNext = s.HasNextPage

	v.renderer.Render(frame)
}

// bind points both triggers at q. Callers hold v.mu.
func (v *View) bind(q *fetchcache.Query) {
	ctx := v.ctx
	v.near.Rebind(func() { q.FetchNextPage(ctx) })
	v.far.Rebind(func() { q.Prefetch(ctx) })
}

func (v *View) buildFrame(s fetchcache.Snapshot) Frame {
	f := Frame{
		Seq:           s.Seq,
		Key:           s.Key,
		Filters:       s.Filters,
		Products:      s.AllProducts,
		TotalCount:    s.TotalCount,
		Sizes:         s.Sizes,
		ContentHeight: v.layout.ContentHeight(len(s.AllProducts)),
		HasNextPage:   s.HasNextPage,
		Prefetched:    s.HasPrefetched,
		Err:           s.Err,
	}

	switch {
	case s.IsLoading:
		f.Status = StatusLoading
	case s.IsError && len(s.Pages) == 0:
		f.Status = StatusError
	case s.IsError:
		f.Status = StatusErrorLoading
	case s.IsFetchingNextPage:
		f.Status = StatusLoadingMore
	case len(s.Pages) > 0 && len(s.AllProducts) == 0:
		f.Status = StatusEmpty
	case len(s.Pages) > 0 && !s.HasNextPage:
		f.Status = StatusEnd
	default:
		f.Status = StatusReady
	}
	return f
}
