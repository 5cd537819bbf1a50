package fetchcache

import (
	"context"

	"github.com/ammerola/catalog-be/internal/core/domain"
)

// Snapshot is a point-in-time view of one filter set's pages
type Snapshot struct {
	Key     string
	Filters domain.FilterState

	Pages       []domain.Page
	AllProducts []domain.Product
	TotalCount  int
	Sizes       []string

	HasNextPage        bool
	IsLoading          bool
	IsFetching         bool
	IsFetchingNextPage bool
	IsPrefetching      bool
	HasPrefetched      bool

	IsError bool
	Err     error

	// Seq increases with every published snapshot of a cache.
	Seq uint64
}

// Query is the handle of one filter set within a Cache
type Query struct {
	c *Cache
	e *entry
}

// Key returns the filter fingerprint
func (q *Query) Key() string {
	return q.e.key
}

// Filters returns the normalized filters of the query
func (q *Query) Filters() domain.FilterState {
	return q.e.filters
}

// Snapshot returns the current state of the query
func (q *Query) Snapshot() Snapshot {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.c.snapshot(q.e)
}

// Active reports whether the query's filters are the cache's active ones.
func (q *Query) Active() bool {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.c.current == q.e
}

// FetchNextPage requests the page after the last one held. It is a no-op
// while any fetch is in flight, before the first page arrives, or when the
// last page says there is nothing more. A buffered prefetched page is
// promoted without a network call. It reports whether a page was requested
// or promoted.
func (q *Query) FetchNextPage(ctx context.Context) bool {
	c, e := q.c, q.e

	c.mu.Lock()
	switch {
	case c.current != e:
		c.mu.Unlock()
		c.metrics.IncBrowseNoop("inactive")
		return false

	case e.inflight != nil:
		var snap Snapshot
		var subs []func(Snapshot)
		if e.inflight.prefetch && !e.promote {
			e.promote = true
			snap, subs = c.publish(e)
		}
		c.mu.Unlock()
		c.notify(subs, snap)
		c.metrics.IncBrowseNoop("in_flight")
		return false

	case len(e.pages) == 0:
		c.mu.Unlock()
		c.metrics.IncBrowseNoop("no_pages")
		return false

	case e.prefetched != nil:
		e.pages = append(e.pages, *e.prefetched)
		e.prefetched = nil
		snap, subs := c.publish(e)
		c.mu.Unlock()
		c.notify(subs, snap)
		return true

	case !e.hasNext():
		c.mu.Unlock()
		c.metrics.IncBrowseNoop("no_next_page")
		return false
	}

	c.start(ctx, e, len(e.pages)+1, KindNext, false)
	snap, subs := c.publish(e)
	c.mu.Unlock()

	c.notify(subs, snap)
	return true
}

// Prefetch buffers the page after the last one held so a later
// FetchNextPage can show it at once. At most one page is buffered, and it is
// never issued while another fetch is in flight or after an error. A failed
// prefetch is not reported as an error and is not repeated until the next
// visible request.
func (q *Query) Prefetch(ctx context.Context) bool {
	c, e := q.c, q.e

	c.mu.Lock()
	if c.current != e || e.inflight != nil || e.prefetched != nil || e.err != nil || e.prefetchFailed || !e.hasNext() {
		c.mu.Unlock()
		c.metrics.IncBrowseNoop("prefetch_skipped")
		return false
	}

	c.start(ctx, e, len(e.pages)+1, KindPrefetch, true)
	snap, subs := c.publish(e)
	c.mu.Unlock()

	c.notify(subs, snap)
	return true
}

// Retry re-issues the request that failed, keeping every page already held.
func (q *Query) Retry(ctx context.Context) bool {
	c, e := q.c, q.e

	c.mu.Lock()
	if c.current != e || e.err == nil || e.inflight != nil {
		c.mu.Unlock()
		c.metrics.IncBrowseNoop("retry_skipped")
		return false
	}

	c.start(ctx, e, len(e.pages)+1, KindRetry, false)
	snap, subs := c.publish(e)
	c.mu.Unlock()

	c.notify(subs, snap)
	return true
}

// Wait blocks until the query has no fetch in flight and the last settled
// fetch has been delivered to subscribers, or ctx is done.
func (q *Query) Wait(ctx context.Context) error {
	for {
		q.c.mu.Lock()
		req := q.e.inflight
		if req == nil {
			req = q.e.last
		}
		q.c.mu.Unlock()

		if req == nil {
			return nil
		}
		if q.isSettled(req) {
			return nil
		}
		select {
		case <-req.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Query) isSettled(req *request) bool {
	select {
	case <-req.done:
		q.c.mu.Lock()
		defer q.c.mu.Unlock()
		return q.e.inflight == nil
	default:
		return false
	}
}
