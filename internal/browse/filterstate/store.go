// Package filterstate keeps the active browse filters in sync with a
// navigable location such as a URL query string.
package filterstate

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

// ErrUnknownFilter is returned for a filter key the store does not manage.
var ErrUnknownFilter = errors.New("unknown filter")

// Store owns the canonical FilterState of a browse session
type Store struct {
	loc    ports.Location
	logger *slog.Logger

	// writeMu orders local updates with their location pushes.
	writeMu sync.Mutex

	mu      sync.Mutex
	filters domain.FilterState
	subs    map[int]func(domain.FilterState)
	nextSub int
	closed  bool

	stopListen func()
}

// NewStore builds a store from initial filters overlaid with whatever the
// location already carries. Location values win for any key they set.
func NewStore(loc ports.Location, initial domain.FilterState, logger *slog.Logger) *Store {
	s := &Store{
		loc:     loc,
		logger:  logger.With(slog.String("component", "filterstate")),
		filters: domain.MergeFilters(initial, domain.ParseFilterValues(loc.Query())),
		subs:    make(map[int]func(domain.FilterState)),
	}
	s.stopListen = loc.Listen(s.onNavigate)
	return s
}

// Filters returns a copy of the current filters
func (s *Store) Filters() domain.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.filters)
}

// Subscribe registers fn for every filter change and returns a func that removes it.
func (s *Store) Subscribe(fn func(domain.FilterState)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// UpdateFilter sets one filter. Search takes the first value; sizes take all of them.
// It reports whether the filters changed.
func (s *Store) UpdateFilter(key domain.FilterKey, values ...string) (bool, error) {
	next := s.Filters()
	switch key {
	case domain.FilterSearch:
		next.Search = ""
		if len(values) > 0 {
			next.Search = values[0]
		}
	case domain.FilterSizes:
		next.Sizes = slices.Clone(values)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownFilter, key)
	}
	return s.apply(next), nil
}

// SetSearch replaces the search text
func (s *Store) SetSearch(text string) bool {
	changed, _ := s.UpdateFilter(domain.FilterSearch, text)
	return changed
}

// SetSizes replaces the selected sizes
func (s *Store) SetSizes(sizes ...string) bool {
	changed, _ := s.UpdateFilter(domain.FilterSizes, sizes...)
	return changed
}

// ToggleSize adds size to the selection, or removes it when already selected.
func (s *Store) ToggleSize(size string) bool {
	next := s.Filters()
	if i := slices.Index(next.Sizes, size); i >= 0 {
		next.Sizes = slices.Delete(next.Sizes, i, i+1)
	} else {
		next.Sizes = append(next.Sizes, size)
	}
	return s.apply(next)
}

// ClearFilter removes one filter
func (s *Store) ClearFilter(key domain.FilterKey) (bool, error) {
	return s.UpdateFilter(key)
}

// ClearAllFilters removes every filter
func (s *Store) ClearAllFilters() bool {
	return s.apply(domain.FilterState{})
}

// Close stops listening to the location and drops all subscribers.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[int]func(domain.FilterState))
	s.mu.Unlock()

	s.stopListen()
}

// apply updates the local state first, then mirrors it into the location.
// A failed push is logged and otherwise ignored.
func (s *Store) apply(next domain.FilterState) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next = next.Normalize()

	s.mu.Lock()
	if s.closed || s.filters.Equal(next) {
		s.mu.Unlock()
		return false
	}
	s.filters = next
	subs := s.subscribers()
	s.mu.Unlock()

	if err := s.loc.Push(next.Values()); err != nil {
		s.logger.Warn("failed to update location",
			slog.String("query", next.Values().Encode()),
			slog.String("error", err.Error()))
	}

	s.notify(subs, next)
	return true
}

// onNavigate reconciles an external navigation. Events that match the current
// value, including echoes of the store's own pushes, are ignored.
func (s *Store) onNavigate(q url.Values) {
	parsed := domain.ParseFilterValues(q)

	s.mu.Lock()
	if s.closed || s.filters.Equal(parsed) {
		s.mu.Unlock()
		return
	}
	s.filters = parsed
	subs := s.subscribers()
	s.mu.Unlock()

	s.logger.Debug("filters changed by navigation", slog.String("query", q.Encode()))
	s.notify(subs, parsed)
}

func (s *Store) subscribers() []func(domain.FilterState) {
	subs := make([]func(domain.FilterState), 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	return subs
}

func (s *Store) notify(subs []func(domain.FilterState), f domain.FilterState) {
	for _, fn := range subs {
		fn(clone(f))
	}
}

func clone(f domain.FilterState) domain.FilterState {
	return domain.FilterState{Search: f.Search, Sizes: slices.Clone(f.Sizes)}
}
