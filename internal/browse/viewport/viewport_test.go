package viewport_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/catalog-be/internal/browse/viewport"
	"github.com/ammerola/catalog-be/test/helpers"
)

func TestIntersects(t *testing.T) {
	view := viewport.Bounds{Top: 0, Bottom: 600}

	tests := []struct {
		name   string
		target viewport.Bounds
		opts   viewport.Options
		want   bool
	}{
		{
			name:   "point_inside",
			target: viewport.Bounds{Top: 300, Bottom: 300},
			want:   true,
		},
		{
			name:   "point_on_edge",
			target: viewport.Bounds{Top: 600, Bottom: 600},
			want:   true,
		},
		{
			name:   "point_below_without_margin",
			target: viewport.Bounds{Top: 750, Bottom: 750},
			want:   false,
		},
		{
			name:   "point_below_within_margin",
			target: viewport.Bounds{Top: 750, Bottom: 750},
			opts:   viewport.Options{RootMargin: 200},
			want:   true,
		},
		{
			name:   "point_above_within_margin",
			target: viewport.Bounds{Top: -150, Bottom: -150},
			opts:   viewport.Options{RootMargin: 200},
			want:   true,
		},
		{
			name:   "box_meets_threshold",
			target: viewport.Bounds{Top: 590, Bottom: 690},
			opts:   viewport.Options{Threshold: 0.1},
			want:   true,
		},
		{
			name:   "box_below_threshold",
			target: viewport.Bounds{Top: 595, Bottom: 695},
			opts:   viewport.Options{Threshold: 0.1},
			want:   false,
		},
		{
			name:   "box_touching_edge",
			target: viewport.Bounds{Top: 600, Bottom: 700},
			want:   false,
		},
		{
			name:   "box_fully_visible",
			target: viewport.Bounds{Top: 100, Bottom: 200},
			opts:   viewport.Options{Threshold: 1},
			want:   true,
		},
		{
			name:   "box_reached_by_margin",
			target: viewport.Bounds{Top: 700, Bottom: 800},
			opts:   viewport.Options{RootMargin: 200, Threshold: 1},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, viewport.Intersects(view, tt.target, tt.opts))
		})
	}
}

func at(y float64) viewport.Sentinel {
	return viewport.SentinelFunc(func() viewport.Bounds {
		return viewport.Bounds{Top: y, Bottom: y}
	})
}

func TestObserver_FiresOnTransitions(t *testing.T) {
	window := viewport.NewWindow(600)
	observer := viewport.NewObserver(window, helpers.TestLogger())

	var calls atomic.Int32
	observer.Observe(at(1000), viewport.Options{RootMargin: 200}, func() { calls.Add(1) })

	assert.Equal(t, 0, observer.Check())

	window.ScrollTo(300)
	assert.Equal(t, 1, observer.Check())

	// still visible: repeated evaluations do not refire
	window.ScrollBy(10)
	observer.Check()
	observer.Check()
	assert.Equal(t, int32(1), calls.Load())

	window.ScrollTo(0)
	observer.Check()
	window.ScrollTo(400)
	observer.Check()
	assert.Equal(t, int32(2), calls.Load())
}

func TestObserver_FiresWhenInitiallyVisible(t *testing.T) {
	observer := viewport.NewObserver(viewport.NewWindow(600), helpers.TestLogger())

	var calls atomic.Int32
	observer.Observe(at(100), viewport.Options{}, func() { calls.Add(1) })

	observer.Check()
	observer.Check()
	assert.Equal(t, int32(1), calls.Load())
}

func TestTrigger_RebindRestartsObservation(t *testing.T) {
	observer := viewport.NewObserver(viewport.NewWindow(600), helpers.TestLogger())

	var first, second atomic.Int32
	trigger := observer.Observe(at(100), viewport.Options{}, func() { first.Add(1) })
	observer.Check()

	trigger.Rebind(func() { second.Add(1) })
	observer.Check()
	observer.Check()

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestTrigger_Stop(t *testing.T) {
	observer := viewport.NewObserver(viewport.NewWindow(600), helpers.TestLogger())

	var calls atomic.Int32
	trigger := observer.Observe(at(100), viewport.Options{}, func() { calls.Add(1) })
	require.Equal(t, 1, observer.Len())

	trigger.Stop()
	trigger.Stop()
	trigger.Rebind(func() { calls.Add(10) })

	assert.Equal(t, 0, observer.Check())
	assert.Equal(t, 0, observer.Len())
	assert.Equal(t, int32(0), calls.Load())
}

func TestObserver_CallbackMayReenter(t *testing.T) {
	window := viewport.NewWindow(600)
	observer := viewport.NewObserver(window, helpers.TestLogger())

	var trigger *viewport.Trigger
	var calls atomic.Int32
	trigger = observer.Observe(at(100), viewport.Options{}, func() {
		calls.Add(1)
		trigger.Rebind(func() { calls.Add(1) })
		observer.Observe(at(5000), viewport.Options{}, func() {})
	})

	observer.Check()
	observer.Check()
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, observer.Len())
}

func TestObserver_Run(t *testing.T) {
	window := viewport.NewWindow(600)
	observer := viewport.NewObserver(window, helpers.TestLogger())

	var calls atomic.Int32
	observer.Observe(at(900), viewport.Options{}, func() { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- observer.Run(ctx, 5*time.Millisecond) }()

	window.ScrollTo(400)
	helpers.AssertEventuallyWithTimeout(t, func() bool {
		return calls.Load() == 1
	}, time.Second, "trigger did not fire")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWindow(t *testing.T) {
	w := viewport.NewWindow(600)
	assert.Equal(t, viewport.Bounds{Top: 0, Bottom: 600}, w.Viewport())

	w.ScrollBy(-50)
	assert.Equal(t, 0.0, w.Viewport().Top)

	w.ScrollTo(5000)
	assert.Equal(t, 5000.0, w.Viewport().Top)

	w.SetContentHeight(1000)
	assert.Equal(t, viewport.Bounds{Top: 400, Bottom: 1000}, w.Viewport())

	w.Resize(1200)
	assert.Equal(t, viewport.Bounds{Top: 0, Bottom: 1200}, w.Viewport())

	w.SetContentHeight(3000)
	w.ScrollBy(500)
	assert.Equal(t, viewport.Bounds{Top: 500, Bottom: 1700}, w.Viewport())
}
