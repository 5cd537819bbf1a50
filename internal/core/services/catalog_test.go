package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
	"github.com/ammerola/catalog-be/test/helpers"
	"github.com/ammerola/catalog-be/test/mocks"
)

func newSource(t *testing.T) *mocks.MockCatalogSource {
	t.Helper()
	ctrl := gomock.NewController(t)
	source := mocks.NewMockCatalogSource(ctrl)
	source.EXPECT().Name().Return("mock").AnyTimes()
	return source
}

func TestCatalogService_Reload(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(*mocks.MockCatalogSource)
		wantErr     bool
		wantCount   int
		wantSkipped int
	}{
		{
			name: "loads_all_products",
			setupMocks: func(s *mocks.MockCatalogSource) {
				s.EXPECT().Load(gomock.Any()).Return(helpers.SampleProducts(), nil)
			},
			wantCount: 2,
		},
		{
			name: "skips_invalid_and_duplicate_products",
			setupMocks: func(s *mocks.MockCatalogSource) {
				products := append(helpers.SampleProducts(),
					domain.Product{ID: 0, Title: "No id"},
					domain.Product{ID: 3, Title: ""},
					domain.Product{ID: 4, Title: "Bad price", SalePrice: "cheap"},
					domain.Product{ID: 1, Title: "Duplicate shoe"},
				)
				s.EXPECT().Load(gomock.Any()).Return(products, nil)
			},
			wantCount:   2,
			wantSkipped: 4,
		},
		{
			name: "empty_catalog_is_valid",
			setupMocks: func(s *mocks.MockCatalogSource) {
				s.EXPECT().Load(gomock.Any()).Return([]domain.Product{}, nil)
			},
			wantCount: 0,
		},
		{
			name: "source_error_is_returned",
			setupMocks: func(s *mocks.MockCatalogSource) {
				s.EXPECT().Load(gomock.Any()).Return(nil, errors.New("file not found"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newSource(t)
			tt.setupMocks(source)

			svc := services.NewCatalogService(source, helpers.TestLogger(), services.WithMetrics(metrics.New()))
			result, err := svc.Reload(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to load catalog from mock")
				assert.False(t, svc.Stats().Loaded)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, result.Count)
			assert.Equal(t, tt.wantSkipped, result.Skipped)
			assert.True(t, result.Changed)
			assert.Empty(t, result.PreviousVersion)
			assert.Len(t, result.Version, 16)

			stats := svc.Stats()
			assert.True(t, stats.Loaded)
			assert.Equal(t, tt.wantCount, stats.Count)
			assert.Equal(t, "mock", stats.Source)
		})
	}
}

func TestCatalogService_ReloadFailureKeepsPreviousCatalog(t *testing.T) {
	ctx := context.Background()
	source := newSource(t)
	gomock.InOrder(
		source.EXPECT().Load(gomock.Any()).Return(helpers.SampleProducts(), nil),
		source.EXPECT().Load(gomock.Any()).Return(nil, errors.New("truncated json")),
	)

	svc := services.NewCatalogService(source, helpers.TestLogger())
	require.NoError(t, svc.Load(ctx))
	version := svc.Stats().Version

	_, err := svc.Reload(ctx)
	require.Error(t, err)

	assert.Equal(t, version, svc.Stats().Version)
	page, err := svc.ListProducts(ctx, domain.FilterState{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
}

func TestCatalogService_ReloadReportsUnchanged(t *testing.T) {
	ctx := context.Background()
	source := newSource(t)
	source.EXPECT().Load(gomock.Any()).Return(helpers.SampleProducts(), nil).Times(2)

	svc := services.NewCatalogService(source, helpers.TestLogger())
	first, err := svc.Reload(ctx)
	require.NoError(t, err)
	second, err := svc.Reload(ctx)
	require.NoError(t, err)

	assert.False(t, second.Changed)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Version, second.PreviousVersion)
	assert.Equal(t, 2, second.PreviousCount)
}

func TestCatalogService_NotLoaded(t *testing.T) {
	ctx := context.Background()
	svc := services.NewCatalogService(newSource(t), helpers.TestLogger())

	_, err := svc.ListProducts(ctx, domain.FilterState{}, 1)
	assert.ErrorIs(t, err, services.ErrCatalogNotLoaded)

	_, err = svc.GetProduct(ctx, 1)
	assert.ErrorIs(t, err, services.ErrCatalogNotLoaded)

	_, err = svc.FilterOptions(ctx)
	assert.ErrorIs(t, err, services.ErrCatalogNotLoaded)

	_, err = svc.ExportProducts(ctx, domain.FilterState{})
	assert.ErrorIs(t, err, services.ErrCatalogNotLoaded)
}

func loadedService(t *testing.T, products []domain.Product, opts ...services.CatalogOption) *services.CatalogService {
	t.Helper()
	source := newSource(t)
	source.EXPECT().Load(gomock.Any()).Return(products, nil)
	svc := services.NewCatalogService(source, helpers.TestLogger(), opts...)
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func TestCatalogService_ListProducts(t *testing.T) {
	svc := loadedService(t, helpers.SampleProducts())

	tests := []struct {
		name    string
		filters domain.FilterState
		page    int
		wantIDs []int
		wantErr error
	}{
		{name: "size_filter", filters: domain.FilterState{Sizes: []string{"S"}}, page: 1, wantIDs: []int{1}},
		{name: "search_filter", filters: domain.FilterState{Search: "  hat "}, page: 1, wantIDs: []int{2}},
		{name: "no_match", filters: domain.FilterState{Sizes: []string{"Z"}}, page: 1, wantIDs: []int{}},
		{name: "page_zero_rejected", page: 0, wantErr: domain.ErrInvalidPage},
		{name: "negative_page_rejected", page: -1, wantErr: domain.ErrInvalidPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListProducts(context.Background(), tt.filters, tt.page)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(page.Items))
		})
	}
}

func TestCatalogService_PageCache(t *testing.T) {
	ctx := context.Background()
	r := helpers.SetupTestRedis(t)
	cache := redis_a.NewCache(r.Client, time.Minute, helpers.TestLogger())
	m := metrics.New()

	source := newSource(t)
	gomock.InOrder(
		source.EXPECT().Load(gomock.Any()).Return(helpers.SampleProducts(), nil),
		source.EXPECT().Load(gomock.Any()).Return(helpers.SampleProducts()[:1], nil),
	)
	svc := services.NewCatalogService(source, helpers.TestLogger(),
		services.WithPageCache(cache, time.Minute), services.WithMetrics(m))
	require.NoError(t, svc.Load(ctx))

	filters := domain.FilterState{Sizes: []string{"M", "S"}}
	version := svc.Stats().Version
	key := services.PageCacheKey(version, filters, 1)

	t.Run("miss_populates_cache", func(t *testing.T) {
		page, err := svc.ListProducts(ctx, filters, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, ids(page.Items))
		assert.True(t, r.Server.Exists(key))
	})

	t.Run("size_order_shares_entry", func(t *testing.T) {
		page, err := svc.ListProducts(ctx, domain.FilterState{Sizes: []string{"S", "M"}}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, ids(page.Items))
		assert.Len(t, r.Server.Keys(), 1)
	})

	t.Run("reload_switches_version", func(t *testing.T) {
		result, err := svc.Reload(ctx)
		require.NoError(t, err)
		require.True(t, result.Changed)

		page, err := svc.ListProducts(ctx, filters, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, ids(page.Items))
		assert.True(t, r.Server.Exists(services.PageCacheKey(result.Version, filters, 1)))
	})
}

func TestCatalogService_PageCacheDownFallsBack(t *testing.T) {
	r := helpers.SetupTestRedis(t)
	cache := redis_a.NewCache(r.Client, time.Minute, helpers.TestLogger())
	svc := loadedService(t, helpers.SampleProducts(), services.WithPageCache(cache, time.Minute))

	r.Server.Close()

	page, err := svc.ListProducts(context.Background(), domain.FilterState{Search: "shoe"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(page.Items))
}

func TestCatalogService_PageCacheMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	svc := loadedService(t, helpers.SampleProducts(), services.WithPageCache(cache, 30*time.Second))

	cache.EXPECT().
		GetOrSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 30*time.Second).
		DoAndReturn(func(_ context.Context, key string, dest any, fetch func() (any, error), _ time.Duration) error {
			assert.Contains(t, key, "products:")
			assert.Contains(t, key, ":2")
			v, err := fetch()
			if err != nil {
				return err
			}
			*dest.(*domain.Page) = *v.(*domain.Page)
			return nil
		})

	page, err := svc.ListProducts(context.Background(), domain.FilterState{}, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.Page)
}

func TestCatalogService_ConcurrentListProducts(t *testing.T) {
	r := helpers.SetupTestRedis(t)
	cache := redis_a.NewCache(r.Client, time.Minute, helpers.TestLogger())
	svc := loadedService(t, helpers.CreateTestProducts(100), services.WithPageCache(cache, time.Minute))

	var wg sync.WaitGroup
	results := make([]*domain.Page, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page, err := svc.ListProducts(context.Background(), domain.FilterState{Sizes: []string{"M"}}, 2)
			assert.NoError(t, err)
			results[i] = page
		}(i)
	}
	wg.Wait()

	for _, page := range results {
		require.NotNil(t, page)
		assert.Equal(t, ids(results[0].Items), ids(page.Items))
	}
}

func TestCatalogService_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	svc := loadedService(t, helpers.CreateTestProducts(45), services.WithPageCache(cache, 30*time.Second))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	cache.EXPECT().
		GetOrSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 30*time.Second).
		DoAndReturn(func(ctx context.Context, _ string, dest any, fetch func() (any, error), _ time.Duration) error {
			once.Do(func() { close(entered) })
			<-release
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := fetch()
			if err != nil {
				return err
			}
			*dest.(*domain.Page) = *v.(*domain.Page)
			return nil
		}).
		MinTimes(1)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ListProducts(firstCtx, domain.FilterState{}, 1)
		firstErr <- err
	}()
	<-entered

	type result struct {
		page *domain.Page
		err  error
	}
	second := make(chan result, 1)
	go func() {
		page, err := svc.ListProducts(context.Background(), domain.FilterState{}, 1)
		second <- result{page: page, err: err}
	}()
	// let the second caller join the in-flight lookup
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.page.Items, domain.PageSize)
	assert.Equal(t, 45, res.page.TotalCount)
}

func TestCatalogService_GetProduct(t *testing.T) {
	svc := loadedService(t, helpers.SampleProducts())

	product, err := svc.GetProduct(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Blue Hat", product.Title)

	product.Title = "changed"
	again, err := svc.GetProduct(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Blue Hat", again.Title)

	_, err = svc.GetProduct(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCatalogService_FilterOptions(t *testing.T) {
	products := append(helpers.SampleProducts(), domain.Product{ID: 3, Title: "Gift card"})
	svc := loadedService(t, products)

	opts, err := svc.FilterOptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Hats", "Shoes"}, opts.Categories)
	assert.Equal(t, []string{"Acme", "Northwind"}, opts.Brands)
	assert.Equal(t, []string{"Blue", "Red"}, opts.Colors)
	assert.Equal(t, []string{"L", "M", "S"}, opts.Sizes)
	assert.Equal(t, 3, opts.TotalProducts)
	require.NotNil(t, opts.PriceRange)
	assert.True(t, decimal.RequireFromString("19.99").Equal(opts.PriceRange.Min))
	assert.True(t, decimal.RequireFromString("59.99").Equal(opts.PriceRange.Max))
}

func TestCatalogService_ExportProducts(t *testing.T) {
	svc := loadedService(t, helpers.CreateTestProducts(45))

	all, err := svc.ExportProducts(context.Background(), domain.FilterState{})
	require.NoError(t, err)
	assert.Len(t, all, 45)

	sized, err := svc.ExportProducts(context.Background(), domain.FilterState{Sizes: []string{"XL"}})
	require.NoError(t, err)
	for _, p := range sized {
		assert.Contains(t, p.SizeTokens(), "XL")
	}
}

func TestPageCacheKey(t *testing.T) {
	a := services.PageCacheKey("v1", domain.FilterState{Search: "hat", Sizes: []string{"M", "S"}}, 3)
	b := services.PageCacheKey("v1", domain.FilterState{Search: " hat", Sizes: []string{"S", "M", "S"}}, 3)

	assert.Equal(t, a, b)
	assert.Equal(t, "products:v1:search=hat&sizes=M%2CS:3", a)
	assert.Equal(t, "products:v1:*", services.PageCachePattern("v1"))
}
