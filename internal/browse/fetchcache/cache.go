// Package fetchcache accumulates listing pages per filter set. Pages for a
// filter set are fetched strictly in order, one request at a time, and
// responses for filter sets that are no longer active are discarded.
package fetchcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
)

const (
	DefaultStaleTime   = 5 * time.Minute
	DefaultMaxRetained = 16
)

// Request kinds, as reported in metrics and logs.
const (
	KindInitial  = "initial"
	KindNext     = "next"
	KindPrefetch = "prefetch"
	KindRetry    = "retry"
)

// ErrMalformedPage is recorded when a fetcher returns a page that does not
// match the request.
var ErrMalformedPage = errors.New("malformed page")

// Options tunes a Cache
type Options struct {
	// StaleTime is how long an abandoned filter set keeps its pages.
	StaleTime time.Duration
	// MaxRetained bounds the number of abandoned filter sets kept.
	MaxRetained int
	Metrics     *metrics.Metrics
}

// Cache holds the pages of the active filter set plus recently abandoned ones
type Cache struct {
	fetcher ports.PageFetcher
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	current   *entry
	retained  *lru.Cache[string, retainedEntry]
	staleTime time.Duration
	subs      map[int]func(Snapshot)
	nextSub   int
	seq       uint64

	wg sync.WaitGroup
}

type entry struct {
	key     string
	filters domain.FilterState
	query   *Query

	pages      []domain.Page
	prefetched *domain.Page
	inflight   *request
	last       *request
	// promote marks an in-flight prefetch as wanted by the user.
	promote bool
	err     error
	// prefetchFailed holds off further prefetches until a visible request runs.
	prefetchFailed bool
}

// retainedEntry is an abandoned entry and the moment it was abandoned
type retainedEntry struct {
	e  *entry
	at time.Time
}

type request struct {
	page     int
	kind     string
	prefetch bool
	done     chan struct{}
}

// New creates a fetch cache over fetcher
func New(fetcher ports.PageFetcher, logger *slog.Logger, opts Options) *Cache {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.MaxRetained <= 0 {
		opts.MaxRetained = DefaultMaxRetained
	}

	// lru.New only fails for a non-positive size.
	retained, _ := lru.New[string, retainedEntry](opts.MaxRetained)

	return &Cache{
		fetcher:   fetcher,
		logger:    logger.With(slog.String("component", "fetchcache")),
		metrics:   opts.Metrics,
		retained:  retained,
		staleTime: opts.StaleTime,
		subs:      make(map[int]func(Snapshot)),
	}
}

// Get activates filters and returns their query. The first activation of a
// filter set starts its page 1 fetch. Activating the already active filter
// set is a no-op that returns the same query.
func (c *Cache) Get(ctx context.Context, filters domain.FilterState) *Query {
	filters = filters.Normalize()
	key := filters.Fingerprint()

	c.mu.Lock()
	if c.current != nil && c.current.key == key {
		q := c.current.query
		c.mu.Unlock()
		c.metrics.IncBrowseNoop("same_filters")
		return q
	}

	if c.current != nil {
		c.retained.Add(c.current.key, retainedEntry{e: c.current, at: time.Now()})
	}

	e, ok := c.takeRetained(key)
	if ok {
		c.metrics.IncBrowseRetainedHit()
		c.logger.DebugContext(ctx, "reusing retained entry",
			slog.String("key", key),
			slog.Int("pages", len(e.pages)))
	} else {
		e = &entry{key: key, filters: filters}
		e.query = &Query{c: c, e: e}
	}
	c.current = e

	if len(e.pages) == 0 && e.inflight == nil && e.err == nil {
		c.start(ctx, e, 1, KindInitial, false)
	}
	snap, subs := c.publish(e)
	c.mu.Unlock()

	c.notify(subs, snap)
	return e.query
}

// Current returns the active query, or nil before the first Get.
func (c *Cache) Current() *Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.query
}

// Subscribe registers fn for every snapshot of the active query. fn runs
// outside the cache lock and may call back into the cache.
func (c *Cache) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Retained returns how many abandoned filter sets currently keep pages.
func (c *Cache) Retained() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneRetained()
	return c.retained.Len()
}

// Close waits for every outstanding fetch to settle and drops retained pages.
func (c *Cache) Close() {
	c.wg.Wait()

	c.mu.Lock()
	c.retained.Purge()
	c.mu.Unlock()
}

// takeRetained removes key from the retained set and returns its entry
// unless it went stale. Callers hold c.mu.
func (c *Cache) takeRetained(key string) (*entry, bool) {
	r, ok := c.retained.Get(key)
	if !ok {
		return nil, false
	}
	c.retained.Remove(key)
	if c.expired(r) {
		c.logger.Debug("retained entry dropped", slog.String("key", key))
		return nil, false
	}
	return r.e, true
}

// pruneRetained drops stale retained entries. Callers hold c.mu.
func (c *Cache) pruneRetained() {
	for _, key := range c.retained.Keys() {
		if r, ok := c.retained.Peek(key); ok && c.expired(r) {
			c.retained.Remove(key)
			c.logger.Debug("retained entry dropped", slog.String("key", key))
		}
	}
}

func (c *Cache) expired(r retainedEntry) bool {
	return time.Since(r.at) > c.staleTime
}

// start issues a fetch for e. Callers hold c.mu.
func (c *Cache) start(ctx context.Context, e *entry, page int, kind string, prefetch bool) {
	req := &request{page: page, kind: kind, prefetch: prefetch, done: make(chan struct{})}
	e.inflight = req
	e.last = req
	e.promote = false
	e.err = nil
	if !prefetch {
		e.prefetchFailed = false
	}

	c.metrics.IncBrowseRequest(kind)
	c.logger.DebugContext(ctx, "fetching page",
		slog.String("key", e.key),
		slog.Int("page", page),
		slog.String("kind", kind))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()
		result, err := c.fetcher.FetchPage(ctx, e.filters, page)
		c.metrics.ObserveBrowseFetch(time.Since(start))

		if err != nil {
			err = fmt.Errorf("failed to fetch page %d: %w", page, err)
		} else if result == nil || result.Page != page || len(result.Items) > domain.PageSize {
			err = fmt.Errorf("%w: requested page %d", ErrMalformedPage, page)
			result = nil
		}
		c.resolve(ctx, e, req, result, err)
	}()
}

// resolve applies a settled request when it is still wanted. A response is
// applied only if its entry is active, it is the entry's in-flight request,
// and it carries the next expected page.
func (c *Cache) resolve(ctx context.Context, e *entry, req *request, page *domain.Page, err error) {
	c.mu.Lock()
	defer close(req.done)

	if e.inflight != req {
		c.mu.Unlock()
		c.discard(ctx, e, req, "superseded")
		return
	}
	e.inflight = nil
	promote := e.promote
	e.promote = false

	if c.current != e {
		c.mu.Unlock()
		c.discard(ctx, e, req, "inactive")
		return
	}
	if req.page != len(e.pages)+1 {
		c.mu.Unlock()
		c.discard(ctx, e, req, "out_of_order")
		return
	}

	switch {
	case err != nil && req.prefetch && !promote:
		// Nobody is waiting on a background prefetch, so its failure stays
		// out of the snapshot and the next FetchNextPage asks again.
		e.prefetchFailed = true
		c.logger.DebugContext(ctx, "prefetch failed",
			slog.String("key", e.key),
			slog.Int("page", req.page),
			slog.String("error", err.Error()))
	case err != nil:
		e.err = err
		c.logger.WarnContext(ctx, "page fetch failed",
			slog.String("key", e.key),
			slog.Int("page", req.page),
			slog.String("kind", req.kind),
			slog.String("error", err.Error()))
	case req.prefetch && !promote:
		e.prefetched = page
	default:
		e.pages = append(e.pages, *page)
	}

	snap, subs := c.publish(e)
	c.mu.Unlock()

	c.notify(subs, snap)
}

func (c *Cache) discard(ctx context.Context, e *entry, req *request, reason string) {
	c.metrics.IncBrowseStale()
	c.logger.DebugContext(ctx, "discarding stale response",
		slog.String("key", e.key),
		slog.Int("page", req.page),
		slog.String("reason", reason))
}

// publish stamps a new snapshot of e. Callers hold c.mu.
func (c *Cache) publish(e *entry) (Snapshot, []func(Snapshot)) {
	c.seq++
	snap := c.snapshot(e)

	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.subs[id])
	}
	return snap, subs
}

func (c *Cache) notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

// snapshot builds the view of e at the current sequence. Callers hold c.mu.
func (c *Cache) snapshot(e *entry) Snapshot {
	s := Snapshot{
		Key:     e.key,
		Filters: domain.FilterState{Search: e.filters.Search, Sizes: slices.Clone(e.filters.Sizes)},
		Pages:   slices.Clone(e.pages),
		Err:     e.err,
		IsError: e.err != nil,
		Seq:     c.seq,
	}

	n := 0
	for i := range e.pages {
		n += len(e.pages[i].Items)
	}
	s.AllProducts = make([]domain.Product, 0, n)
	for i := range e.pages {
		s.AllProducts = append(s.AllProducts, e.pages[i].Items...)
	}

	if last := len(e.pages) - 1; last >= 0 {
		s.HasNextPage = e.pages[last].HasNextPage
		s.TotalCount = e.pages[last].TotalCount
		s.Sizes = slices.Clone(e.pages[last].Sizes)
	}

	if req := e.inflight; req != nil {
		visible := !req.prefetch || e.promote
		s.IsFetching = visible
		s.IsPrefetching = !visible
		s.IsFetchingNextPage = visible && len(e.pages) > 0
		s.IsLoading = visible && len(e.pages) == 0
	}
	s.HasPrefetched = e.prefetched != nil

	return s
}

// hasNext reports whether e has a known next page. Callers hold c.mu.
func (e *entry) hasNext() bool {
	if len(e.pages) == 0 {
		return false
	}
	return e.pages[len(e.pages)-1].HasNextPage
}
