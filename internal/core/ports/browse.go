package ports

import (
	"context"
	"net/url"

	"github.com/ammerola/catalog-be/internal/core/domain"
)

// PageFetcher retrieves one page of a filtered product listing.
type PageFetcher interface {
	FetchPage(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error) {
	return f(ctx, filters, page)
}

// Location is a navigable key/value store that mirrors browse filters,
// such as a browser's query string.
type Location interface {
	// Query returns the current query parameters.
	Query() url.Values
	// Push navigates to a new query. It may fail; callers treat that as non-fatal.
	Push(q url.Values) error
	// Listen registers fn for every navigation event and returns a func to stop listening.
	Listen(fn func(q url.Values)) (stop func())
}
