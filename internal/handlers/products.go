// internal/handlers/products.go
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

// ProductsHandler serves the catalog listing routes
type ProductsHandler struct {
	service ports.CatalogService
	logger  *slog.Logger
}

// NewProductsHandler creates a new products handler
func NewProductsHandler(service ports.CatalogService, logger *slog.Logger) *ProductsHandler {
	return &ProductsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "products")),
	}
}

// ListData is the data block of a listing response
type ListData struct {
	Products []domain.Product `json:"products"`
	Sizes    []string         `json:"sizes"`
}

// ListProducts handles GET /api/products
func (h *ProductsHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := parsePage(query.Get("page"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid page parameter")
		return
	}
	filters := domain.ParseFilterValues(query)

	result, err := h.service.ListProducts(ctx, filters, page)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPage) {
			respondError(w, h.logger, http.StatusBadRequest, "Invalid page parameter")
			return
		}
		h.logger.ErrorContext(ctx, "failed to list products",
			slog.String("filters", filters.Fingerprint()),
			slog.Int("page", page),
			slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to load products")
		return
	}

	data := ListData{Products: result.Items, Sizes: result.Sizes}
	if data.Products == nil {
		data.Products = []domain.Product{}
	}
	if data.Sizes == nil {
		data.Sizes = []string{}
	}

	respondJSON(w, h.logger, http.StatusOK, envelope{
		Success:    true,
		Data:       data,
		Pagination: result.Pagination(),
	})
}

// GetProduct handles GET /api/products/{id}
func (h *ProductsHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idStr := r.PathValue("id")

	id, err := strconv.Atoi(idStr)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.service.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			respondError(w, h.logger, http.StatusNotFound, "Product not found")
			return
		}
		h.logger.ErrorContext(ctx, "failed to get product",
			slog.String("product_id", idStr),
			slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}

	respondData(w, h.logger, product)
}

// FilterOptions handles GET /api/filters
func (h *ProductsHandler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts, err := h.service.FilterOptions(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load filter options",
			slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to load filters")
		return
	}

	respondData(w, h.logger, opts)
}

// parsePage reads the page query value. An absent value means page 1.
func parsePage(raw string) (int, error) {
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if page < 1 {
		return 0, domain.ErrInvalidPage
	}
	return page, nil
}
