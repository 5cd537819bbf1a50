// internal/core/services/query.go
package services

import (
	"fmt"
	"slices"

	"github.com/ammerola/catalog-be/internal/core/domain"
)

// Query filters products and returns the requested page. Products keep
// their original order. Pages below 1 are rejected with domain.ErrInvalidPage.
func Query(products []domain.Product, filters domain.FilterState, page int) (*domain.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidPage, page)
	}

	searched := filterBySearch(products, filters)
	matched := filterBySizes(searched, filters)

	total := len(matched)
	totalPages := (total + domain.PageSize - 1) / domain.PageSize

	// page is compared before multiplying so huge values cannot overflow.
	items := []domain.Product{}
	if page <= totalPages {
		offset := (page - 1) * domain.PageSize
		end := min(offset+domain.PageSize, total)
		items = slices.Clone(matched[offset:end])
	}

	return &domain.Page{
		Items:       items,
		Page:        page,
		TotalCount:  total,
		HasNextPage: page < totalPages,
		Sizes:       collectSizes(searched),
	}, nil
}

// Filter returns every product matching filters, in original order.
func Filter(products []domain.Product, filters domain.FilterState) []domain.Product {
	return filterBySizes(filterBySearch(products, filters), filters)
}

// AvailableSizes returns the sorted set of sizes offered by products matching
// the search text. The size filter itself is not applied.
func AvailableSizes(products []domain.Product, filters domain.FilterState) []string {
	return collectSizes(filterBySearch(products, filters))
}

func filterBySearch(products []domain.Product, filters domain.FilterState) []domain.Product {
	term := filters.Normalize().Search
	if term == "" {
		return products
	}
	out := make([]domain.Product, 0, len(products))
	for i := range products {
		if products[i].MatchesSearch(term) {
			out = append(out, products[i])
		}
	}
	return out
}

func filterBySizes(products []domain.Product, filters domain.FilterState) []domain.Product {
	wanted := filters.SizeSet()
	if len(wanted) == 0 {
		return products
	}
	out := make([]domain.Product, 0, len(products))
	for i := range products {
		if products[i].HasAnySize(wanted) {
			out = append(out, products[i])
		}
	}
	return out
}

func collectSizes(products []domain.Product) []string {
	seen := make(map[string]struct{})
	sizes := []string{}
	for i := range products {
		for _, token := range products[i].SizeTokens() {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			sizes = append(sizes, token)
		}
	}
	slices.Sort(sizes)
	return sizes
}
