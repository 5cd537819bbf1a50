// internal/core/ports/catalog.go
package ports

import (
	"context"
	"time"

	"github.com/ammerola/catalog-be/internal/core/domain"
)

// CatalogSource loads the full product collection from wherever it is stored.
type CatalogSource interface {
	Name() string
	Load(ctx context.Context) ([]domain.Product, error)
}

// CatalogService defines the application service port for the catalog.
type CatalogService interface {
	ListProducts(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error)
	GetProduct(ctx context.Context, id int) (*domain.Product, error)
	FilterOptions(ctx context.Context) (*domain.FilterOptions, error)
	ExportProducts(ctx context.Context, filters domain.FilterState) ([]domain.Product, error)
	Reload(ctx context.Context) (*ReloadResult, error)
	Stats() CatalogStats
}

// ReloadResult describes the outcome of a catalog reload
type ReloadResult struct {
	Source          string `json:"source"`
	PreviousVersion string `json:"previous_version"`
	Version         string `json:"version"`
	PreviousCount   int    `json:"previous_count"`
	Count           int    `json:"count"`
	Skipped         int    `json:"skipped"`
	Changed         bool   `json:"changed"`
}

// CatalogStats is a point-in-time summary of the loaded catalog
type CatalogStats struct {
	Source   string    `json:"source"`
	Version  string    `json:"version"`
	Count    int       `json:"count"`
	LoadedAt time.Time `json:"loaded_at"`
	Loaded   bool      `json:"loaded"`
}

// TaskQueue schedules background catalog maintenance.
type TaskQueue interface {
	EnqueueCacheWarm(ctx context.Context, pages int, includeSizes bool) error
	EnqueueCachePurge(ctx context.Context, version string) error
}
