package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// PageSize is the fixed number of products per page.
const PageSize = 20

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("page must be a positive integer")

// Page is one slice of a filtered product listing.
type Page struct {
	Items       []Product `json:"items"`
	Page        int       `json:"page"`
	TotalCount  int       `json:"totalCount"`
	HasNextPage bool      `json:"hasNextPage"`
	// Sizes lists the sizes available under the active search.
	Sizes []string `json:"sizes,omitempty"`
}

// Pagination is the metadata block returned alongside a page.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalCount  int  `json:"totalCount"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// Pagination derives the pagination metadata for the page.
func (p *Page) Pagination() Pagination {
	return Pagination{
		Page:        p.Page,
		Limit:       PageSize,
		TotalCount:  p.TotalCount,
		TotalPages:  (p.TotalCount + PageSize - 1) / PageSize,
		HasNextPage: p.HasNextPage,
		HasPrevPage: p.Page > 1,
	}
}

// PriceRange bounds the effective prices of a catalog.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// FilterOptions lists the facet values available across the whole catalog.
type FilterOptions struct {
	Categories    []string    `json:"categories"`
	Brands        []string    `json:"brands"`
	Colors        []string    `json:"colors"`
	Sizes         []string    `json:"sizes"`
	PriceRange    *PriceRange `json:"priceRange,omitempty"`
	TotalProducts int         `json:"totalProducts"`
}
