// internal/core/domain/filters.go
package domain

import (
	"net/url"
	"slices"
	"strings"
)

// FilterKey names a filter that can be mirrored into a query string.
type FilterKey string

const (
	FilterSearch FilterKey = "search"
	FilterSizes  FilterKey = "sizes"
)

// FilterState holds the active browse filters. Sizes is an ordered set:
// insertion order is kept, duplicates are not.
type FilterState struct {
	Search string   `json:"search,omitempty"`
	Sizes  []string `json:"sizes,omitempty"`
}

// Normalize trims the search text and drops empty or duplicate sizes.
func (f FilterState) Normalize() FilterState {
	out := FilterState{Search: strings.TrimSpace(f.Search)}
	seen := make(map[string]struct{}, len(f.Sizes))
	for _, s := range f.Sizes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out.Sizes = append(out.Sizes, s)
	}
	return out
}

// IsEmpty reports whether no filter is active.
func (f FilterState) IsEmpty() bool {
	n := f.Normalize()
	return n.Search == "" && len(n.Sizes) == 0
}

// SizeSet returns the normalized sizes as a lookup set.
func (f FilterState) SizeSet() map[string]struct{} {
	n := f.Normalize()
	set := make(map[string]struct{}, len(n.Sizes))
	for _, s := range n.Sizes {
		set[s] = struct{}{}
	}
	return set
}

// SortedSizes returns a sorted copy of the normalized sizes.
func (f FilterState) SortedSizes() []string {
	sizes := slices.Clone(f.Normalize().Sizes)
	slices.Sort(sizes)
	return sizes
}

// Fingerprint is the cache key for a filter set. Equivalent filter sets,
// including ones that differ only in size order, share a fingerprint.
func (f FilterState) Fingerprint() string {
	v := url.Values{}
	n := f.Normalize()
	v.Set(string(FilterSearch), n.Search)
	v.Set(string(FilterSizes), strings.Join(f.SortedSizes(), ","))
	return v.Encode()
}

// Equal compares two filter states by value; size order does not matter.
func (f FilterState) Equal(other FilterState) bool {
	a, b := f.Normalize(), other.Normalize()
	if a.Search != b.Search || len(a.Sizes) != len(b.Sizes) {
		return false
	}
	return slices.Equal(f.SortedSizes(), other.SortedSizes())
}

// Values serializes the filters into query parameters. Empty filters are
// omitted rather than written as empty strings.
func (f FilterState) Values() url.Values {
	v := url.Values{}
	n := f.Normalize()
	if n.Search != "" {
		v.Set(string(FilterSearch), n.Search)
	}
	if len(n.Sizes) > 0 {
		v.Set(string(FilterSizes), strings.Join(n.Sizes, ","))
	}
	return v
}

// Has reports whether the filter for key is set.
func (f FilterState) Has(key FilterKey) bool {
	n := f.Normalize()
	switch key {
	case FilterSearch:
		return n.Search != ""
	case FilterSizes:
		return len(n.Sizes) > 0
	}
	return false
}

// ParseFilterValues reads filters from query parameters.
func ParseFilterValues(v url.Values) FilterState {
	return FilterState{
		Search: v.Get(string(FilterSearch)),
		Sizes:  SplitSizes(v.Get(string(FilterSizes))),
	}.Normalize()
}

// MergeFilters overlays override onto base. A key set in override wins.
func MergeFilters(base, override FilterState) FilterState {
	out := base.Normalize()
	if override.Has(FilterSearch) {
		out.Search = override.Normalize().Search
	}
	if override.Has(FilterSizes) {
		out.Sizes = override.Normalize().Sizes
	}
	return out
}
