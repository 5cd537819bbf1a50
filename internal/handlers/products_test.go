package handlers_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/handlers"
	"github.com/ammerola/catalog-be/test/helpers"
	"github.com/ammerola/catalog-be/test/mocks"
)

type listResponse struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error"`
	Data       handlers.ListData `json:"data"`
	Pagination domain.Pagination `json:"pagination"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func newProductsMux(service *mocks.MockCatalogService) *http.ServeMux {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Routes{
		Products: handlers.NewProductsHandler(service, helpers.TestLogger()),
		Logger:   helpers.TestLogger(),
	})
	return mux
}

func TestProductsHandler_ListProducts(t *testing.T) {
	catalog := helpers.CreateTestProducts(45)

	tests := []struct {
		name           string
		query          string
		setupMocks     func(*mocks.MockCatalogService)
		expectedStatus int
		validateBody   func(*testing.T, []byte)
	}{
		{
			name:  "defaults_to_first_unfiltered_page",
			query: "",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), domain.FilterState{}, 1).
					DoAndReturn(func(_ any, f domain.FilterState, page int) (*domain.Page, error) {
						return services.Query(catalog, f, page)
					})
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp listResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.True(t, resp.Success)
				assert.Len(t, resp.Data.Products, domain.PageSize)
				assert.Equal(t, 1, resp.Data.Products[0].ID)
				assert.Equal(t, domain.Pagination{
					Page: 1, Limit: 20, TotalCount: 45, TotalPages: 3,
					HasNextPage: true, HasPrevPage: false,
				}, resp.Pagination)
			},
		},
		{
			name:  "passes_filters_and_page",
			query: "?search=Product%201&sizes=M,%20L&page=2",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), domain.FilterState{Search: "Product 1", Sizes: []string{"M", "L"}}, 2).
					Return(&domain.Page{Page: 2, TotalCount: 21, Items: catalog[20:21], Sizes: []string{"L", "M"}}, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp listResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Len(t, resp.Data.Products, 1)
				assert.Equal(t, []string{"L", "M"}, resp.Data.Sizes)
				assert.True(t, resp.Pagination.HasPrevPage)
				assert.False(t, resp.Pagination.HasNextPage)
			},
		},
		{
			name:  "empty_result_has_empty_arrays",
			query: "?search=nothing",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), domain.FilterState{Search: "nothing"}, 1).
					Return(&domain.Page{Page: 1}, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), `"products":[]`)
				assert.Contains(t, string(body), `"sizes":[]`)
			},
		},
		{
			name:           "non_integer_page",
			query:          "?page=abc",
			setupMocks:     func(m *mocks.MockCatalogService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body []byte) {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.False(t, resp.Success)
				assert.Equal(t, "Invalid page parameter", resp.Error)
			},
		},
		{
			name:           "page_below_one",
			query:          "?page=0",
			setupMocks:     func(m *mocks.MockCatalogService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "huge_page_is_empty",
			query: "?page=9223372036854775807",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), domain.FilterState{}, math.MaxInt).
					DoAndReturn(func(_ any, f domain.FilterState, page int) (*domain.Page, error) {
						return services.Query(catalog, f, page)
					})
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp listResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.True(t, resp.Success)
				assert.Empty(t, resp.Data.Products)
				assert.Contains(t, string(body), `"products":[]`)
				assert.Equal(t, 45, resp.Pagination.TotalCount)
				assert.False(t, resp.Pagination.HasNextPage)
			},
		},
		{
			name:  "service_rejects_page",
			query: "?page=3",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), gomock.Any(), 3).
					Return(nil, fmt.Errorf("wrapped: %w", domain.ErrInvalidPage))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "service_failure",
			query: "",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), gomock.Any(), 1).
					Return(nil, services.ErrCatalogNotLoaded)
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body []byte) {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "Failed to load products", resp.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			service := mocks.NewMockCatalogService(ctrl)
			tt.setupMocks(service)

			req := httptest.NewRequest(http.MethodGet, "/api/products"+tt.query, nil)
			rec := httptest.NewRecorder()
			newProductsMux(service).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.validateBody != nil {
				tt.validateBody(t, rec.Body.Bytes())
			}
		})
	}
}

func TestProductsHandler_GetProduct(t *testing.T) {
	product := helpers.CreateTestProduct()

	tests := []struct {
		name           string
		id             string
		setupMocks     func(*mocks.MockCatalogService)
		expectedStatus int
		expectedError  string
	}{
		{
			name: "returns_product",
			id:   "1",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().GetProduct(gomock.Any(), 1).Return(product, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid_id",
			id:             "abc",
			setupMocks:     func(m *mocks.MockCatalogService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid product ID format",
		},
		{
			name: "unknown_id",
			id:   "999",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().GetProduct(gomock.Any(), 999).
					Return(nil, fmt.Errorf("%w: 999", domain.ErrProductNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedError:  "Product not found",
		},
		{
			name: "service_failure",
			id:   "2",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().GetProduct(gomock.Any(), 2).Return(nil, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Failed to retrieve product",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			service := mocks.NewMockCatalogService(ctrl)
			tt.setupMocks(service)

			req := httptest.NewRequest(http.MethodGet, "/api/products/"+tt.id, nil)
			rec := httptest.NewRecorder()
			newProductsMux(service).ServeHTTP(rec, req)

			require.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedError != "" {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.expectedError, resp.Error)
				return
			}

			var resp struct {
				Success bool           `json:"success"`
				Data    domain.Product `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, *product, resp.Data)
		})
	}
}

func TestProductsHandler_FilterOptions(t *testing.T) {
	t.Run("returns_options", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockCatalogService(ctrl)
		service.EXPECT().FilterOptions(gomock.Any()).Return(&domain.FilterOptions{
			Categories:    []string{"Hats", "Shoes"},
			Sizes:         []string{"L", "M", "S"},
			TotalProducts: 2,
		}, nil)

		rec := httptest.NewRecorder()
		newProductsMux(service).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filters", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data domain.FilterOptions `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"Hats", "Shoes"}, resp.Data.Categories)
		assert.Equal(t, 2, resp.Data.TotalProducts)
	})

	t.Run("service_failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockCatalogService(ctrl)
		service.EXPECT().FilterOptions(gomock.Any()).Return(nil, services.ErrCatalogNotLoaded)

		rec := httptest.NewRecorder()
		newProductsMux(service).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filters", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to load filters")
	})
}

func TestRegisterRoutes_UnknownRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockCatalogService(ctrl)

	rec := httptest.NewRecorder()
	newProductsMux(service).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Not found", resp.Error)
}
