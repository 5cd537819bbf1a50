//go:build e2e
// +build e2e

package e2e_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ammerola/catalog-be/internal/adapters/apiclient"
	"github.com/ammerola/catalog-be/internal/adapters/catalogfile"
	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/browse/fetchcache"
	"github.com/ammerola/catalog-be/internal/browse/filterstate"
	"github.com/ammerola/catalog-be/internal/browse/listview"
	"github.com/ammerola/catalog-be/internal/browse/viewport"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
	"github.com/ammerola/catalog-be/internal/core/services"
	"github.com/ammerola/catalog-be/internal/handlers"
	"github.com/ammerola/catalog-be/internal/handlers/middleware"
	"github.com/ammerola/catalog-be/internal/pkg/metrics"
	"github.com/ammerola/catalog-be/test/helpers"
)

type BrowseE2ESuite struct {
	suite.Suite
	server      *httptest.Server
	client      *apiclient.Client
	testRedis   *helpers.TestRedis
	catalogPath string
	service     *services.CatalogService
}

func (s *BrowseE2ESuite) SetupSuite() {
	logger := helpers.TestLogger()

	s.testRedis = helpers.SetupTestRedis(s.T())
	cache := redis_a.NewCache(s.testRedis.Client, time.Minute, logger)

	s.catalogPath = helpers.WriteCatalogFile(s.T(), s.T().TempDir(), helpers.CreateTestProducts(45))
	source := catalogfile.New(s.catalogPath, 0, logger)

	m := metrics.New()
	s.service = services.NewCatalogService(source, logger,
		services.WithPageCache(cache, time.Minute),
		services.WithMetrics(m),
	)
	s.Require().NoError(s.service.Load(context.Background()))

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Routes{
		Products: handlers.NewProductsHandler(s.service, logger),
		Export:   handlers.NewExportHandler(s.service, cache, logger),
		Stats:    handlers.NewStatsHandler(s.service, cache, logger),
		Admin:    handlers.NewAdminHandler(s.service, nil, 0, logger),
		Health:   handlers.NewHealthHandler(s.service, cache, nil, nil, logger),
		Logger:   logger,
	})

	s.server = httptest.NewServer(middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Metrics(m),
	))

	client, err := apiclient.New(s.server.URL, logger, apiclient.WithTimeout(5*time.Second))
	s.Require().NoError(err)
	s.client = client
}

func (s *BrowseE2ESuite) TearDownSuite() {
	s.server.Close()
}

func (s *BrowseE2ESuite) TestCompleteBrowseWorkflow() {
	ctx := context.Background()

	// 1. Service reports healthy
	resp, err := http.Get(s.server.URL + "/health")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	// 2. Filter options are served
	options, err := s.client.FilterOptions(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"L", "M", "S", "XL", "XS"}, options.Sizes)

	// 3. Scroll the whole catalog through the API
	frame := s.browse(ctx, s.client, domain.FilterState{})
	s.Equal(listview.StatusEnd, frame.Status)
	s.Len(frame.Products, 45)
	for i, p := range frame.Products {
		s.Equal(i+1, p.ID)
	}

	// 4. Narrow by size
	frame = s.browse(ctx, s.client, domain.FilterState{Sizes: []string{"XL"}})
	s.Equal(listview.StatusEnd, frame.Status)
	s.NotEmpty(frame.Products)
	for _, p := range frame.Products {
		s.Contains(p.SizeTokens(), "XL")
	}

	// 5. Replace the catalog on disk and reload
	before := s.service.Stats().Version
	s.writeCatalog(helpers.CreateTestProducts(12))

	resp, err = http.Post(s.server.URL+"/api/reload", "application/json", nil)
	s.Require().NoError(err)
	var reload struct {
		Success bool               `json:"success"`
		Data    ports.ReloadResult `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&reload))
	resp.Body.Close()

	s.True(reload.Success)
	s.True(reload.Data.Changed)
	s.Equal(before, reload.Data.PreviousVersion)
	s.Equal(12, reload.Data.Count)

	// 6. Browsing sees the new catalog, not cached pages of the old one
	page, err := s.client.FetchPage(ctx, domain.FilterState{}, 1)
	s.Require().NoError(err)
	s.Equal(12, page.TotalCount)
	s.False(page.HasNextPage)

	// 7. Export and stats follow the new version
	resp, err = http.Get(s.server.URL + "/api/products/export?format=json&columns=id,title")
	s.Require().NoError(err)
	var export handlers.JSONExportResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&export))
	resp.Body.Close()
	s.Equal("MISS", resp.Header.Get("X-Cache"))
	s.Equal(12, export.Metadata.TotalItems)
	s.Equal(reload.Data.Version, export.Metadata.CatalogVersion)
	s.Len(export.Products[0], 2)

	resp, err = http.Get(s.server.URL + "/api/stats")
	s.Require().NoError(err)
	var stats struct {
		Data handlers.StatsData `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	s.Equal(12, stats.Data.Summary.TotalProducts)
}

func (s *BrowseE2ESuite) TestUnknownProduct() {
	_, err := s.client.Product(context.Background(), 99999)
	s.Error(err)
}

// browse runs a list view over fetcher and scrolls until the list ends.
func (s *BrowseE2ESuite) browse(ctx context.Context, fetcher ports.PageFetcher, filters domain.FilterState) listview.Frame {
	logger := helpers.TestLogger()

	store := filterstate.NewStore(filterstate.NewMemoryLocation(nil), filters, logger)
	defer store.Close()
	cache := fetchcache.New(fetcher, logger, fetchcache.Options{})
	defer cache.Close()

	window := viewport.NewWindow(800)
	observer := viewport.NewObserver(window, logger)
	view := listview.New(store, cache, observer, listview.DefaultLayout(),
		listview.RendererFunc(func(f listview.Frame) { window.SetContentHeight(f.ContentHeight) }), logger)
	defer view.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for i := 0; i < 50; i++ {
		s.Require().NoError(view.Query().Wait(waitCtx))
		if !view.Frame().HasNextPage {
			break
		}
		window.ScrollBy(600)
		observer.Check()
	}
	s.Require().NoError(view.Query().Wait(waitCtx))
	return view.Frame()
}

func (s *BrowseE2ESuite) writeCatalog(products []domain.Product) {
	data, err := json.Marshal(products)
	s.Require().NoError(err)
	tmp := filepath.Join(filepath.Dir(s.catalogPath), "products.json.tmp")
	s.Require().NoError(os.WriteFile(tmp, data, 0o644))
	s.Require().NoError(os.Rename(tmp, s.catalogPath))
}

func TestBrowseE2ESuite(t *testing.T) {
	suite.Run(t, new(BrowseE2ESuite))
}
