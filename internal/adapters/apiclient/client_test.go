package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/catalog-be/internal/adapters/apiclient"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/test/helpers"
)

const baseURL = "http://api.test"

func newClient(t *testing.T) (*apiclient.Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client, err := apiclient.New(baseURL+"/", helpers.TestLogger(),
		apiclient.WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)
	return client, transport
}

func productsBody(page int, products []domain.Product, total int, hasNext bool) map[string]any {
	return map[string]any{
		"success": true,
		"data": map[string]any{
			"products": products,
			"sizes":    []string{"L", "M", "S"},
		},
		"pagination": map[string]any{
			"page":        page,
			"limit":       20,
			"totalCount":  total,
			"totalPages":  (total + 19) / 20,
			"hasNextPage": hasNext,
			"hasPrevPage": page > 1,
		},
	}
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "api.test", "://bad"} {
		_, err := apiclient.New(raw, helpers.TestLogger())
		assert.Error(t, err, raw)
	}
}

func TestNew_TimeoutLeavesCallerClientUntouched(t *testing.T) {
	transport := httpmock.NewMockTransport()
	shared := &http.Client{Transport: transport, Timeout: 30 * time.Second}

	client, err := apiclient.New(baseURL, helpers.TestLogger(),
		apiclient.WithHTTPClient(shared),
		apiclient.WithTimeout(2*time.Second))
	require.NoError(t, err)

	var deadline time.Time
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/products",
		func(req *http.Request) (*http.Response, error) {
			deadline, _ = req.Context().Deadline()
			return httpmock.NewJsonResponse(http.StatusOK, productsBody(1, helpers.SampleProducts(), 2, false))
		})

	start := time.Now()
	_, err = client.FetchPage(context.Background(), domain.FilterState{}, 1)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, shared.Timeout)
	assert.Equal(t, 1, transport.GetTotalCallCount(), "caller transport is still used")
	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, start.Add(2*time.Second), deadline, time.Second)
}

func TestClient_FetchPage(t *testing.T) {
	client, transport := newClient(t)

	var gotQuery map[string][]string
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/products",
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.Query()
			return httpmock.NewJsonResponse(http.StatusOK, productsBody(2, helpers.SampleProducts(), 22, false))
		})

	page, err := client.FetchPage(context.Background(), domain.FilterState{Search: "shoe", Sizes: []string{"M", "S"}}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"shoe"}, gotQuery["search"])
	assert.Equal(t, []string{"M,S"}, gotQuery["sizes"])
	assert.Equal(t, []string{"2"}, gotQuery["page"])

	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 22, page.TotalCount)
	assert.False(t, page.HasNextPage)
	assert.Equal(t, helpers.SampleProducts(), page.Items)
	assert.Equal(t, []string{"L", "M", "S"}, page.Sizes)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestClient_FetchPageOmitsEmptyFilters(t *testing.T) {
	client, transport := newClient(t)

	var rawQuery string
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/products",
		func(req *http.Request) (*http.Response, error) {
			rawQuery = req.URL.RawQuery
			return httpmock.NewJsonResponse(http.StatusOK, productsBody(1, []domain.Product{}, 0, false))
		})

	page, err := client.FetchPage(context.Background(), domain.FilterState{Search: "  "}, 1)
	require.NoError(t, err)
	assert.Equal(t, "page=1", rawQuery)
	assert.Empty(t, page.Items)
}

func TestClient_FetchPageErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		wantErr   error
		wantMsg   string
	}{
		{
			name: "server_error",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusInternalServerError,
				map[string]any{"success": false, "error": "Failed to load products"}),
			wantErr: apiclient.ErrUnexpectedStatus,
			wantMsg: "Failed to load products",
		},
		{
			name:      "bad_gateway_without_body",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, "<html>"),
			wantErr:   apiclient.ErrUnexpectedStatus,
		},
		{
			name:      "transport_failure",
			responder: httpmock.NewErrorResponder(errors.New("connection reset")),
			wantMsg:   "connection reset",
		},
		{
			name:      "not_json",
			responder: httpmock.NewStringResponder(http.StatusOK, "<html>"),
			wantErr:   apiclient.ErrMalformedResponse,
		},
		{
			name: "success_false",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK,
				map[string]any{"success": false, "error": "nope"}),
			wantErr: apiclient.ErrMalformedResponse,
		},
		{
			name: "missing_products",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK,
				map[string]any{"success": true, "data": map[string]any{}, "pagination": map[string]any{"page": 1}}),
			wantErr: apiclient.ErrMalformedResponse,
		},
		{
			name: "missing_pagination",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK,
				map[string]any{"success": true, "data": map[string]any{"products": []any{}}}),
			wantErr: apiclient.ErrMalformedResponse,
		},
		{
			name:      "wrong_page",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, productsBody(3, []domain.Product{}, 0, false)),
			wantErr:   apiclient.ErrMalformedResponse,
		},
		{
			name:      "oversized_page",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, productsBody(1, helpers.CreateTestProducts(21), 21, false)),
			wantErr:   apiclient.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newClient(t)
			transport.RegisterResponder(http.MethodGet, baseURL+"/api/products", tt.responder)

			page, err := client.FetchPage(context.Background(), domain.FilterState{}, 1)
			require.Error(t, err)
			assert.Nil(t, page)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_FilterOptions(t *testing.T) {
	client, transport := newClient(t)
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/filters",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"categories":    []string{"Hats", "Shoes"},
				"brands":        []string{"Acme"},
				"colors":        []string{},
				"sizes":         []string{"M"},
				"priceRange":    map[string]any{"min": "19.99", "max": "59.99"},
				"totalProducts": 2,
			},
		}))

	opts, err := client.FilterOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Hats", "Shoes"}, opts.Categories)
	assert.Equal(t, 2, opts.TotalProducts)
	require.NotNil(t, opts.PriceRange)
	assert.Equal(t, "59.99", opts.PriceRange.Max.String())
}

func TestClient_Product(t *testing.T) {
	client, transport := newClient(t)
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/products/2",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"success": true,
			"data":    helpers.SampleProducts()[1],
		}))
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/products/99",
		httpmock.NewJsonResponderOrPanic(http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Product not found",
		}))

	product, err := client.Product(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Blue Hat", product.Title)

	_, err = client.Product(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
