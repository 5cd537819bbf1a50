package filterstate

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ammerola/catalog-be/internal/core/ports"
)

// MemoryLocation is an in-memory navigation history. It behaves like a
// browser's history stack: Push drops forward entries, Back and Forward move
// the cursor, and every navigation notifies listeners.
type MemoryLocation struct {
	mu        sync.Mutex
	entries   []url.Values
	index     int
	listeners map[int]func(url.Values)
	nextID    int
	pushErr   error
	pushes    int
}

// Statically assert that *MemoryLocation implements the Location interface.
var _ ports.Location = (*MemoryLocation)(nil)

// NewMemoryLocation starts a history with a single entry holding initial
func NewMemoryLocation(initial url.Values) *MemoryLocation {
	return &MemoryLocation{
		entries:   []url.Values{cloneValues(initial)},
		listeners: make(map[int]func(url.Values)),
	}
}

// ParseLocation starts a history from a URL or a bare query such as "?sizes=S,M".
func ParseLocation(raw string) (*MemoryLocation, error) {
	if raw == "" {
		return NewMemoryLocation(nil), nil
	}
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse location %q: %w", raw, err)
	}
	return NewMemoryLocation(values), nil
}

// Query returns a copy of the current entry
func (l *MemoryLocation) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.entries[l.index])
}

// String renders the current entry as a relative URL
func (l *MemoryLocation) String() string {
	q := l.Query()
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

// Push appends a new entry after the current one
func (l *MemoryLocation) Push(q url.Values) error {
	l.mu.Lock()
	if l.pushErr != nil {
		err := l.pushErr
		l.mu.Unlock()
		return err
	}
	l.entries = append(l.entries[:l.index+1], cloneValues(q))
	l.index++
	l.pushes++
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	l.notify(listeners, q)
	return nil
}

// Replace overwrites the current entry
func (l *MemoryLocation) Replace(q url.Values) {
	l.mu.Lock()
	l.entries[l.index] = cloneValues(q)
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	l.notify(listeners, q)
}

// Back moves to the previous entry. It reports false at the start of history.
func (l *MemoryLocation) Back() bool {
	return l.move(-1)
}

// Forward moves to the next entry. It reports false at the end of history.
func (l *MemoryLocation) Forward() bool {
	return l.move(1)
}

func (l *MemoryLocation) move(delta int) bool {
	l.mu.Lock()
	next := l.index + delta
	if next < 0 || next >= len(l.entries) {
		l.mu.Unlock()
		return false
	}
	l.index = next
	q := cloneValues(l.entries[next])
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	l.notify(listeners, q)
	return true
}

// Listen registers fn for every navigation
func (l *MemoryLocation) Listen(fn func(q url.Values)) (stop func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.listeners[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// FailPushes makes every later Push return err. A nil err restores normal pushes.
func (l *MemoryLocation) FailPushes(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushErr = err
}

// Len returns the number of history entries
func (l *MemoryLocation) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Pushes returns how many pushes succeeded
func (l *MemoryLocation) Pushes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pushes
}

func (l *MemoryLocation) snapshotListeners() []func(url.Values) {
	out := make([]func(url.Values), 0, len(l.listeners))
	for _, fn := range l.listeners {
		out = append(out, fn)
	}
	return out
}

func (l *MemoryLocation) notify(listeners []func(url.Values), q url.Values) {
	for _, fn := range listeners {
		fn(cloneValues(q))
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
