package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/handlers"
	"github.com/ammerola/catalog-be/test/helpers"
	"github.com/ammerola/catalog-be/test/mocks"
)

func TestBuildStats(t *testing.T) {
	products := helpers.SampleProducts()
	products = append(products, domain.Product{ID: 3, Title: "Plain Sock", Category: "Socks", ListPrice: "5.00"})

	stats := handlers.BuildStats(products)

	assert.Equal(t, 3, stats.Summary.TotalProducts)
	assert.Equal(t, 2, stats.Summary.WithSizes)
	assert.Equal(t, 2, stats.Summary.OnSale)
	assert.True(t, decimal.RequireFromString("28.33").Equal(stats.Summary.AveragePrice), stats.Summary.AveragePrice.String())
	assert.True(t, decimal.RequireFromString("109.98").Equal(stats.Summary.TotalListValue))

	assert.Equal(t, []handlers.FacetCount{{Value: "M", Count: 2}, {Value: "L", Count: 1}, {Value: "S", Count: 1}}, stats.Sizes)
	assert.Equal(t, []handlers.FacetCount{{Value: "in stock", Count: 2}}, stats.Availability)
	assert.Len(t, stats.Categories, 3)
	assert.Len(t, stats.Brands, 2)
}

func TestStatsHandler_GetStats(t *testing.T) {
	t.Run("computes_without_cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockCatalogService(ctrl)
		service.EXPECT().Stats().Return(ports.CatalogStats{Source: "file", Version: "v1", Count: 2, Loaded: true})
		service.EXPECT().ExportProducts(gomock.Any(), domain.FilterState{}).Return(helpers.SampleProducts(), nil)

		mux := http.NewServeMux()
		handlers.RegisterRoutes(mux, handlers.Routes{Stats: handlers.NewStatsHandler(service, nil, helpers.TestLogger())})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool               `json:"success"`
			Data    handlers.StatsData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "v1", resp.Data.Catalog.Version)
		assert.Equal(t, 2, resp.Data.Summary.TotalProducts)
	})

	t.Run("caches_per_version", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockCatalogService(ctrl)
		service.EXPECT().Stats().Return(ports.CatalogStats{Version: "v1", Loaded: true}).Times(2)
		service.EXPECT().ExportProducts(gomock.Any(), gomock.Any()).Return(helpers.SampleProducts(), nil).Times(1)

		testRedis := helpers.SetupTestRedis(t)
		cache := redis_a.NewCache(testRedis.Client, time.Minute, helpers.TestLogger())
		h := handlers.NewStatsHandler(service, cache, helpers.TestLogger())

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
		assert.True(t, testRedis.Server.Exists("stats:v1"))
	})

	t.Run("service_failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockCatalogService(ctrl)
		service.EXPECT().Stats().Return(ports.CatalogStats{})
		service.EXPECT().ExportProducts(gomock.Any(), gomock.Any()).Return(nil, errors.New("not loaded"))

		h := handlers.NewStatsHandler(service, nil, helpers.TestLogger())
		rec := httptest.NewRecorder()
		h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to load stats")
	})
}
