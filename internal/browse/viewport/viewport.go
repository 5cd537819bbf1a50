// Package viewport fires callbacks when sentinel regions come within a
// margin of a scrolling viewport. Visibility is found by polling scroll
// positions.
package viewport

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	DefaultNearMargin = 200
	DefaultFarMargin  = 400
	DefaultThreshold  = 0.1
)

// Bounds is a vertical span in content coordinates
type Bounds struct {
	Top    float64
	Bottom float64
}

// Height returns the span's height, never negative
func (b Bounds) Height() float64 {
	return max(b.Bottom-b.Top, 0)
}

// Scroller reports the visible part of the content
type Scroller interface {
	Viewport() Bounds
}

// Sentinel reports where an observed marker currently sits
type Sentinel interface {
	Bounds() Bounds
}

// SentinelFunc adapts a function to Sentinel
type SentinelFunc func() Bounds

// Bounds calls f.
func (f SentinelFunc) Bounds() Bounds {
	return f()
}

// Options controls when a sentinel counts as visible
type Options struct {
	// RootMargin grows the viewport on both ends.
	RootMargin float64
	// Threshold is the visible share of the sentinel's height required, 0..1.
	Threshold float64
}

// Intersects applies the visibility rule: the sentinel is tested against the
// viewport grown by RootMargin and must show at least Threshold of its height.
// A zero-height sentinel is visible when it lies within the grown viewport.
func Intersects(view, target Bounds, opts Options) bool {
	root := Bounds{Top: view.Top - opts.RootMargin, Bottom: view.Bottom + opts.RootMargin}

	h := target.Height()
	if h == 0 {
		return target.Top >= root.Top && target.Top <= root.Bottom
	}

	visible := min(root.Bottom, target.Bottom) - max(root.Top, target.Top)
	if visible <= 0 {
		return false
	}
	return visible/h >= opts.Threshold
}

// Observer evaluates triggers against one scroller
type Observer struct {
	scroller Scroller
	logger   *slog.Logger

	mu       sync.Mutex
	triggers map[int]*Trigger
	nextID   int
}

// Trigger is one observed sentinel
type Trigger struct {
	o        *Observer
	id       int
	sentinel Sentinel
	opts     Options

	// guarded by o.mu
	callback     func()
	intersecting bool
	stopped      bool
}

// NewObserver creates an observer for scroller
func NewObserver(scroller Scroller, logger *slog.Logger) *Observer {
	return &Observer{
		scroller: scroller,
		logger:   logger.With(slog.String("component", "viewport")),
		triggers: make(map[int]*Trigger),
	}
}

// Observe starts watching sentinel. callback fires on the next evaluation
// that finds the sentinel visible, and again each time it becomes visible
// after having been hidden.
func (o *Observer) Observe(sentinel Sentinel, opts Options, callback func()) *Trigger {
	o.mu.Lock()
	defer o.mu.Unlock()

	t := &Trigger{
		o:        o,
		id:       o.nextID,
		sentinel: sentinel,
		opts:     opts,
		callback: callback,
	}
	o.nextID++
	o.triggers[t.id] = t
	return t
}

// Len returns the number of live triggers.
func (o *Observer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.triggers)
}

// Check evaluates every trigger once. Callbacks run after the observer lock
// is released, in trigger creation order, and may call back into the observer.
func (o *Observer) Check() int {
	view := o.scroller.Viewport()

	o.mu.Lock()
	ids := make([]int, 0, len(o.triggers))
	for id := range o.triggers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	live := make([]*Trigger, 0, len(ids))
	for _, id := range ids {
		live = append(live, o.triggers[id])
	}
	o.mu.Unlock()

	// sentinels are read without the lock so they may consult their owners
	positions := make([]Bounds, len(live))
	for i, t := range live {
		positions[i] = t.sentinel.Bounds()
	}

	var fire []func()
	o.mu.Lock()
	for i, t := range live {
		if t.stopped {
			continue
		}
		now := Intersects(view, positions[i], t.opts)
		if now && !t.intersecting && t.callback != nil {
			fire = append(fire, t.callback)
			o.logger.Debug("sentinel visible",
				slog.Int("trigger", t.id),
				slog.Float64("margin", t.opts.RootMargin),
				slog.Float64("sentinel", positions[i].Top),
				slog.Float64("viewport_top", view.Top),
				slog.Float64("viewport_bottom", view.Bottom))
		}
		t.intersecting = now
	}
	o.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	return len(fire)
}

// Run calls Check every interval until ctx is done.
func (o *Observer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Check()
		}
	}
}

// Rebind swaps the callback and restarts the observation, so a sentinel that
// is already visible fires again on the next evaluation.
func (t *Trigger) Rebind(callback func()) {
	t.o.mu.Lock()
	defer t.o.mu.Unlock()

	if t.stopped {
		return
	}
	t.callback = callback
	t.intersecting = false
}

// Stop ends the observation. It is safe to call more than once.
func (t *Trigger) Stop() {
	t.o.mu.Lock()
	defer t.o.mu.Unlock()

	t.stopped = true
	t.callback = nil
	delete(t.o.triggers, t.id)
}

// Window is a Scroller with a movable offset, safe for concurrent use
type Window struct {
	mu      sync.Mutex
	top     float64
	height  float64
	content float64
	clamp   bool
}

// NewWindow creates a window of height at offset 0
func NewWindow(height float64) *Window {
	return &Window{height: max(height, 0)}
}

// Viewport implements Scroller.
func (w *Window) Viewport() Bounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Bounds{Top: w.top, Bottom: w.top + w.height}
}

// ScrollTo moves the window's top edge to y.
func (w *Window) ScrollTo(y float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.top = y
	w.fit()
}

// ScrollBy moves the window by dy.
func (w *Window) ScrollBy(dy float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.top += dy
	w.fit()
}

// Resize changes the window height.
func (w *Window) Resize(height float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.height = max(height, 0)
	w.fit()
}

// SetContentHeight bounds later scrolling to the content's extent.
func (w *Window) SetContentHeight(h float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.content = max(h, 0)
	w.clamp = true
	w.fit()
}

func (w *Window) fit() {
	if w.clamp {
		w.top = min(w.top, max(w.content-w.height, 0))
	}
	w.top = max(w.top, 0)
}
