package main

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/catalog-be/internal/core/domain"
)

var (
	brands     = []string{"Northwind", "Alder & Co", "Fieldhouse", "Marlow", "Tidewater", "Quarry"}
	categories = []string{"Jackets", "Shirts", "Trousers", "Knitwear", "Footwear", "Accessories"}
	colors     = []string{"Black", "Navy", "Olive", "Stone", "Rust", "Charcoal", "Cream"}
	nouns      = map[string][]string{
		"Jackets":     {"Field Jacket", "Chore Coat", "Rain Shell", "Quilted Liner"},
		"Shirts":      {"Oxford Shirt", "Flannel Shirt", "Linen Shirt", "Work Shirt"},
		"Trousers":    {"Chino", "Fatigue Pant", "Wool Trouser", "Carpenter Pant"},
		"Knitwear":    {"Crewneck", "Cardigan", "Fisherman Sweater", "Mock Neck"},
		"Footwear":    {"Derby", "Chelsea Boot", "Loafer", "Trail Runner"},
		"Accessories": {"Beanie", "Tote", "Belt", "Scarf"},
	}
	apparelSizes  = []string{"XS", "S", "M", "L", "XL"}
	footwearSizes = []string{"7", "8", "9", "10", "11", "12"}
	availability  = []string{"in stock", "in stock", "in stock", "out of stock", "preorder"}
)

// GenerateProducts builds n synthetic products. The same seed always yields
// the same catalog.
func GenerateProducts(n int, seed uint64) []domain.Product {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	products := make([]domain.Product, 0, n)

	for i := 1; i <= n; i++ {
		category := categories[rng.IntN(len(categories))]
		brand := brands[rng.IntN(len(brands))]
		color := colors[rng.IntN(len(colors))]
		noun := nouns[category][rng.IntN(len(nouns[category]))]

		list := decimal.New(int64(2500+rng.IntN(22500)), -2).Round(0).Sub(decimal.New(1, -2))
		p := domain.Product{
			ID:           i,
			Title:        fmt.Sprintf("%s %s %s", brand, color, noun),
			Description:  fmt.Sprintf("%s %s in %s from %s.", color, strings.ToLower(noun), strings.ToLower(category), brand),
			Brand:        brand,
			Category:     category,
			Color:        color,
			ListPrice:    list.StringFixed(2) + " USD",
			ImageLink:    fmt.Sprintf("https://images.example.com/products/%d.jpg", i),
			Availability: availability[rng.IntN(len(availability))],
		}

		// One in four is discounted.
		if rng.IntN(4) == 0 {
			off := decimal.NewFromInt(int64(10 + 5*rng.IntN(7))).Div(decimal.NewFromInt(100))
			p.SalePrice = list.Mul(decimal.NewFromInt(1).Sub(off)).StringFixed(2) + " USD"
		}

		if category != "Accessories" {
			pool := apparelSizes
			if category == "Footwear" {
				pool = footwearSizes
			}
			p.Sizes = strings.Join(pickSizes(rng, pool), ",")
		}

		products = append(products, p)
	}
	return products
}

func pickSizes(rng *rand.Rand, pool []string) []string {
	var picked []string
	for _, s := range pool {
		if rng.IntN(3) > 0 {
			picked = append(picked, s)
		}
	}
	return picked
}

// ReadXLSX reads products from the first sheet of a workbook. The first row
// is a header naming the columns the same way the API's Excel export does,
// so an export can be fed straight back in.
func ReadXLSX(path string) ([]domain.Product, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog workbook: %w", err)
	}
	if len(file.Sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in catalog workbook")
	}
	sheet := file.Sheets[0]

	var (
		columns  map[string]int
		products []domain.Product
		rowIdx   int
	)
	err = sheet.ForEachRow(func(r *xlsx.Row) error {
		get := func(i int) string {
			if i < 0 {
				return ""
			}
			c := r.GetCell(i)
			if c == nil {
				return ""
			}
			if s, err := c.FormattedValue(); err == nil {
				return strings.TrimSpace(s)
			}
			return strings.TrimSpace(c.String())
		}

		if rowIdx == 0 {
			rowIdx++
			columns = make(map[string]int)
			for i := 0; i < sheet.MaxCol; i++ {
				if h := strings.ToLower(get(i)); h != "" {
					columns[h] = i
				}
			}
			if _, ok := columns["id"]; !ok {
				return fmt.Errorf("header row has no ID column")
			}
			return nil
		}
		rowIdx++

		col := func(header string) string {
			i, ok := columns[header]
			if !ok {
				return ""
			}
			return get(i)
		}

		rawID := col("id")
		if rawID == "" {
			return nil
		}
		id, err := strconv.Atoi(rawID)
		if err != nil {
			return fmt.Errorf("row %d: invalid id %q", rowIdx, rawID)
		}

		products = append(products, domain.Product{
			ID:           id,
			Title:        col("title"),
			Description:  col("description"),
			Brand:        col("brand"),
			Category:     col("category"),
			Color:        col("color"),
			SalePrice:    col("sale price"),
			ListPrice:    col("list price"),
			Sizes:        col("sizes"),
			Availability: col("availability"),
			ImageLink:    col("image link"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return products, nil
}

// Rejection records a product that failed validation
type Rejection struct {
	Position int
	Reason   string
}

// ValidateProducts splits products into the valid ones and the rejections.
// A repeated id is rejected after its first occurrence.
func ValidateProducts(products []domain.Product) ([]domain.Product, []Rejection) {
	valid := make([]domain.Product, 0, len(products))
	var rejected []Rejection
	seen := make(map[int]struct{}, len(products))

	for i := range products {
		p := &products[i]
		if err := p.Validate(); err != nil {
			rejected = append(rejected, Rejection{Position: i, Reason: err.Error()})
			continue
		}
		if _, dup := seen[p.ID]; dup {
			rejected = append(rejected, Rejection{Position: i, Reason: fmt.Sprintf("duplicate id %d", p.ID)})
			continue
		}
		seen[p.ID] = struct{}{}
		valid = append(valid, *p)
	}
	return valid, rejected
}

type catalogSummary struct {
	withoutSizes int
	sizes        []string
	brands       int
}

func summarize(products []domain.Product) catalogSummary {
	var s catalogSummary
	sizes := make(map[string]struct{})
	brandSet := make(map[string]struct{})

	for i := range products {
		tokens := products[i].SizeTokens()
		if len(tokens) == 0 {
			s.withoutSizes++
		}
		for _, t := range tokens {
			sizes[t] = struct{}{}
		}
		if products[i].Brand != "" {
			brandSet[products[i].Brand] = struct{}{}
		}
	}

	for size := range sizes {
		s.sizes = append(s.sizes, size)
	}
	sort.Strings(s.sizes)
	s.brands = len(brandSet)
	return s
}
