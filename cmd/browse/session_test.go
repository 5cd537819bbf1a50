package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/catalog-be/internal/browse/listview"
	"github.com/ammerola/catalog-be/internal/browse/viewport"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/pkg/config"
	"github.com/ammerola/catalog-be/test/helpers"
)

func memoryFetcher(products []domain.Product, calls *atomic.Int32) ports.PageFetcher {
	return ports.PageFetcherFunc(func(_ context.Context, filters domain.FilterState, page int) (*domain.Page, error) {
		calls.Add(1)
		return services.Query(products, filters, page)
	})
}

func testOptions() sessionOptions {
	return sessionOptions{
		Layout: listview.Layout{
			RowHeight: 100,
			Columns:   2,
			Near:      viewport.Options{RootMargin: 200, Threshold: 0.1},
			Far:       viewport.Options{RootMargin: 400, Threshold: 0.1},
		},
		ViewportHeight: 600,
		Step:           400,
		Steps:          20,
		SettleTimeout:  2 * time.Second,
	}
}

func TestRunSession_ScrollsToTheEnd(t *testing.T) {
	products := helpers.CreateTestProducts(50)
	var calls atomic.Int32

	res, err := runSession(context.Background(), memoryFetcher(products, &calls), testOptions(), helpers.TestLogger())
	require.NoError(t, err)

	assert.Equal(t, listview.StatusEnd, res.Frame.Status)
	require.Len(t, res.Frame.Products, 50)
	for i, p := range res.Frame.Products {
		assert.Equal(t, products[i].ID, p.ID)
	}
	assert.Equal(t, int32(3), calls.Load(), "each page is requested once")
	assert.Equal(t, "/", res.Location)
	assert.NotEmpty(t, res.Transitions)
	assert.True(t, strings.HasPrefix(res.Transitions[0], "all loading"))
}

func TestRunSession_SwitchesFiltersAfterFirstPass(t *testing.T) {
	var calls atomic.Int32
	opts := testOptions()
	opts.Steps = 0
	opts.ThenSizes = []string{"M"}

	res, err := runSession(context.Background(), memoryFetcher(helpers.CreateTestProducts(50), &calls), opts, helpers.TestLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"M"}, res.Frame.Filters.Sizes)
	assert.Equal(t, listview.StatusEnd, res.Frame.Status)
	assert.Equal(t, 20, res.Frame.TotalCount)
	for _, p := range res.Frame.Products {
		assert.Contains(t, p.SizeTokens(), "M")
	}
	assert.Contains(t, res.Location, "sizes=M")
}

func TestRunSession_LocationSeedsFilters(t *testing.T) {
	var calls atomic.Int32
	opts := testOptions()
	opts.Location = "/?search=Product+1"
	opts.Filters = domain.FilterState{Search: "ignored"}

	res, err := runSession(context.Background(), memoryFetcher(helpers.CreateTestProducts(50), &calls), opts, helpers.TestLogger())
	require.NoError(t, err)

	assert.Equal(t, "Product 1", res.Frame.Filters.Search)
	assert.Equal(t, 11, res.Frame.TotalCount)
}

func TestRunSession_FailsAfterOneRetry(t *testing.T) {
	var calls atomic.Int32
	fetcher := ports.PageFetcherFunc(func(context.Context, domain.FilterState, int) (*domain.Page, error) {
		calls.Add(1)
		return nil, errors.New("upstream unavailable")
	})

	_, err := runSession(context.Background(), fetcher, testOptions(), helpers.TestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Equal(t, int32(2), calls.Load())
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &sessionResult{
		Location: "/?sizes=M",
		Frame: listview.Frame{
			Status:     listview.StatusEnd,
			Products:   helpers.SampleProducts(),
			TotalCount: 2,
			Sizes:      []string{"L", "M", "S"},
		},
		Frames:      3,
		Transitions: []string{"sizes=M loading (0/0)", "sizes=M end (2/2)"},
	})

	out := buf.String()
	assert.Contains(t, out, "Red Shoe")
	assert.Contains(t, out, "59.99")
	assert.Contains(t, out, "Loaded:          2 of 2")
	assert.Contains(t, out, "Sizes offered:   L, M, S")
	assert.Contains(t, out, "sizes=M end (2/2)")
}

func TestLayoutFromConfig(t *testing.T) {
	layout := layoutFromConfig(config.BrowseConfig{RowHeight: 150, Columns: 3, NearMargin: 100, FarMargin: 50})

	assert.Equal(t, 150.0, layout.RowHeight)
	assert.Equal(t, 3, layout.Columns)
	assert.Equal(t, 100.0, layout.Near.RootMargin)
	assert.Greater(t, layout.Far.RootMargin, layout.Near.RootMargin, "far margin is kept beyond the near one")
}
