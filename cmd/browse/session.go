package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ammerola/catalog-be/internal/browse/fetchcache"
	"github.com/ammerola/catalog-be/internal/browse/filterstate"
	"github.com/ammerola/catalog-be/internal/browse/listview"
	"github.com/ammerola/catalog-be/internal/browse/viewport"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
)

// sessionOptions drives one scripted browse session
type sessionOptions struct {
	Location string
	Filters  domain.FilterState

	Layout         listview.Layout
	ViewportHeight float64
	Step           float64
	Steps          int
	Interval       time.Duration
	SettleTimeout  time.Duration

	StaleTime      time.Duration
	MaxRetained    int
	SearchDebounce time.Duration

	// Then switches filters after the first scroll pass and scrolls again.
	ThenSearch *string
	ThenSizes  []string

	Metrics *metrics.Metrics
}

// sessionResult summarizes a finished session
type sessionResult struct {
	Location    string
	Frame       listview.Frame
	Frames      int
	Transitions []string
}

// statusLog records distinct status transitions as frames are rendered
type statusLog struct {
	mu      sync.Mutex
	window  *viewport.Window
	frames  int
	last    string
	entries []string
}

func (l *statusLog) Render(f listview.Frame) {
	l.window.SetContentHeight(f.ContentHeight)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames++
	key := f.Key
	if key == "" {
		key = "all"
	}
	entry := fmt.Sprintf("%s %s (%d/%d)", key, f.Status, len(f.Products), f.TotalCount)
	if entry != l.last {
		l.entries = append(l.entries, entry)
		l.last = entry
	}
}

func (l *statusLog) snapshot() (int, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames, append([]string(nil), l.entries...)
}

func runSession(ctx context.Context, fetcher ports.PageFetcher, opts sessionOptions, logger *slog.Logger) (*sessionResult, error) {
	loc, err := filterstate.ParseLocation(opts.Location)
	if err != nil {
		return nil, err
	}

	store := filterstate.NewStore(loc, opts.Filters, logger)
	defer store.Close()

	cache := fetchcache.New(fetcher, logger, fetchcache.Options{
		StaleTime:   opts.StaleTime,
		MaxRetained: opts.MaxRetained,
		Metrics:     opts.Metrics,
	})
	defer cache.Close()

	window := viewport.NewWindow(opts.ViewportHeight)
	observer := viewport.NewObserver(window, logger)
	log := &statusLog{window: window}

	view := listview.New(store, cache, observer, opts.Layout, log, logger)
	defer view.Close()

	if err := scroll(ctx, view, window, observer, opts); err != nil {
		return nil, err
	}

	if opts.ThenSearch != nil || opts.ThenSizes != nil {
		if opts.ThenSearch != nil {
			debouncer := filterstate.NewSearchDebouncer(store, opts.SearchDebounce)
			debouncer.Type(*opts.ThenSearch)
			debouncer.Flush()
		}
		if opts.ThenSizes != nil {
			store.SetSizes(opts.ThenSizes...)
		}
		window.ScrollTo(0)
		if err := scroll(ctx, view, window, observer, opts); err != nil {
			return nil, err
		}
	}

	frames, transitions := log.snapshot()
	return &sessionResult{
		Location:    loc.String(),
		Frame:       view.Frame(),
		Frames:      frames,
		Transitions: transitions,
	}, nil
}

// scroll settles the active query, then steps the window down until the
// list ends or the step budget runs out. A failed load is retried once.
func scroll(ctx context.Context, view *listview.View, window *viewport.Window, observer *viewport.Observer, opts sessionOptions) error {
	retried := false
	for step := 0; ; step++ {
		if err := settle(ctx, view, opts.SettleTimeout); err != nil {
			return err
		}

		frame := view.Frame()
		switch frame.Status {
		case listview.StatusError, listview.StatusErrorLoading:
			if retried {
				return fmt.Errorf("failed to load %s: %w", frame.Key, frame.Err)
			}
			retried = true
			view.Retry(ctx)
			continue
		case listview.StatusEnd, listview.StatusEmpty:
			return nil
		}

		if step >= opts.Steps {
			return nil
		}

		observer.Check()
		if err := settle(ctx, view, opts.SettleTimeout); err != nil {
			return err
		}
		window.ScrollBy(opts.Step)
		observer.Check()

		if opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}
}

func settle(ctx context.Context, view *listview.View, timeout time.Duration) error {
	q := view.Query()
	if q == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return q.Wait(ctx)
}

func printResult(w io.Writer, res *sessionResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSIZES\tPRICE")
	for _, p := range res.Frame.Products {
		price := p.SalePrice
		if price == "" {
			price = p.ListPrice
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Title, p.Sizes, price)
	}
	tw.Flush()

	f := res.Frame
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, "BROWSE SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Location:        %s\n", res.Location)
	fmt.Fprintf(w, "Status:          %s\n", f.Status)
	fmt.Fprintf(w, "Loaded:          %d of %d\n", len(f.Products), f.TotalCount)
	fmt.Fprintf(w, "Sizes offered:   %s\n", strings.Join(f.Sizes, ", "))
	fmt.Fprintf(w, "Frames rendered: %d\n", res.Frames)
	fmt.Fprintln(w, "\nTransitions:")
	for _, t := range res.Transitions {
		fmt.Fprintf(w, "  %s\n", t)
	}
	if f.Err != nil {
		fmt.Fprintf(w, "\nLast error: %v\n", f.Err)
	}
}
