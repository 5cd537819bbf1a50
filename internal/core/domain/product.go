// internal/core/domain/product.go
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Product is a single catalog record. Products are read-only once loaded.
type Product struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Brand        string `json:"brand"`
	Category     string `json:"category"`
	Color        string `json:"color"`
	SalePrice    string `json:"sale_price"`
	ListPrice    string `json:"list_price"`
	Sizes        string `json:"sizes,omitempty"`
	ImageLink    string `json:"image_link"`
	Availability string `json:"availability"`
}

// Validate performs domain validation on the product
func (p *Product) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidProduct)
	}
	if p.SalePrice != "" {
		if _, err := ParsePrice(p.SalePrice); err != nil {
			return fmt.Errorf("%w: sale_price: %v", ErrInvalidProduct, err)
		}
	}
	if p.ListPrice != "" {
		if _, err := ParsePrice(p.ListPrice); err != nil {
			return fmt.Errorf("%w: list_price: %v", ErrInvalidProduct, err)
		}
	}
	return nil
}

// SizeTokens returns the trimmed, non-empty entries of the comma-separated sizes field.
func (p *Product) SizeTokens() []string {
	return SplitSizes(p.Sizes)
}

// MatchesSearch reports whether term occurs, case-insensitively, in the
// title, description or brand. An empty term matches everything.
func (p *Product) MatchesSearch(term string) bool {
	if term == "" {
		return true
	}
	needle := strings.ToLower(term)
	return strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) ||
		strings.Contains(strings.ToLower(p.Brand), needle)
}

// HasAnySize reports whether the product declares at least one of the wanted sizes.
// A product without sizes never matches.
func (p *Product) HasAnySize(wanted map[string]struct{}) bool {
	for _, token := range p.SizeTokens() {
		if _, ok := wanted[token]; ok {
			return true
		}
	}
	return false
}

// EffectivePrice returns the sale price when set, the list price otherwise.
func (p *Product) EffectivePrice() (decimal.Decimal, bool) {
	for _, raw := range []string{p.SalePrice, p.ListPrice} {
		if raw == "" {
			continue
		}
		if d, err := ParsePrice(raw); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// ParsePrice parses a decimal-like price string. A trailing currency code
// ("59.99 USD") is ignored.
func ParsePrice(raw string) (decimal.Decimal, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(fields[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("price cannot be negative: %q", raw)
	}
	return d, nil
}

// SplitSizes splits a comma-separated size list, trimming each token and
// dropping empty ones. Comma is the only delimiter.
func SplitSizes(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if token := strings.TrimSpace(part); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
