package handlers

import (
	"log/slog"
	"net/http"
)

// Routes groups the handlers mounted by RegisterRoutes. Nil entries are
// not mounted.
type Routes struct {
	Products *ProductsHandler
	Export   *ExportHandler
	Stats    *StatsHandler
	Admin    *AdminHandler
	Health   *HealthHandler
	Metrics  http.Handler
	Logger   *slog.Logger
}

// RegisterRoutes mounts the catalog API on mux
func RegisterRoutes(mux *http.ServeMux, routes Routes) {
	if routes.Products != nil {
		mux.HandleFunc("GET /api/products", routes.Products.ListProducts)
		mux.HandleFunc("GET /api/products/{id}", routes.Products.GetProduct)
		mux.HandleFunc("GET /api/filters", routes.Products.FilterOptions)
	}
	if routes.Export != nil {
		mux.HandleFunc("GET /api/products/export", routes.Export.Export)
	}
	if routes.Stats != nil {
		mux.HandleFunc("GET /api/stats", routes.Stats.GetStats)
	}
	if routes.Admin != nil {
		mux.HandleFunc("POST /api/reload", routes.Admin.Reload)
	}
	if routes.Health != nil {
		mux.HandleFunc("GET /health", routes.Health.Health)
		mux.HandleFunc("GET /ready", routes.Health.Readiness)
	}
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}

	logger := routes.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux.Handle("/", NotFound(logger))
}
