package filterstate

import (
	"sync"
	"time"
)

// DefaultSearchDebounce is the quiet period before typed text is applied.
const DefaultSearchDebounce = 300 * time.Millisecond

// SearchDebouncer applies typed search text to a Store once typing pauses
type SearchDebouncer struct {
	store *Store
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *string
}

// NewSearchDebouncer creates a debouncer. A non-positive delay uses DefaultSearchDebounce.
func NewSearchDebouncer(store *Store, delay time.Duration) *SearchDebouncer {
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	return &SearchDebouncer{store: store, delay: delay}
}

// Type records text and restarts the quiet period
func (d *SearchDebouncer) Type(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = &text
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.Flush() })
}

// Flush applies pending text immediately. It reports whether the store changed.
func (d *SearchDebouncer) Flush() bool {
	d.mu.Lock()
	text := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if text == nil {
		return false
	}
	return d.store.SetSearch(*text)
}

// Cancel drops pending text without applying it
func (d *SearchDebouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
