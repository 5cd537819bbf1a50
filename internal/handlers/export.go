// internal/handlers/export.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v3"

	redis_a "github.com/ammerola/catalog-be/internal/adapters/redis_adapter"
	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"

	exportCacheTTL = 5 * time.Minute
)

// ExportParams defines parameters for export operations
type ExportParams struct {
	Format  string             `json:"format"`
	Filters domain.FilterState `json:"filters"`
	Columns []string           `json:"columns"`
}

// exportColumn is one exportable product field
type exportColumn struct {
	key    string
	header string
	value  func(p *domain.Product) string
}

var exportColumns = []exportColumn{
	{"id", "ID", func(p *domain.Product) string { return strconv.Itoa(p.ID) }},
	{"title", "Title", func(p *domain.Product) string { return p.Title }},
	{"description", "Description", func(p *domain.Product) string { return p.Description }},
	{"brand", "Brand", func(p *domain.Product) string { return p.Brand }},
	{"category", "Category", func(p *domain.Product) string { return p.Category }},
	{"color", "Color", func(p *domain.Product) string { return p.Color }},
	{"sale_price", "Sale Price", func(p *domain.Product) string { return p.SalePrice }},
	{"list_price", "List Price", func(p *domain.Product) string { return p.ListPrice }},
	{"sizes", "Sizes", func(p *domain.Product) string { return p.Sizes }},
	{"availability", "Availability", func(p *domain.Product) string { return p.Availability }},
	{"image_link", "Image Link", func(p *domain.Product) string { return p.ImageLink }},
}

// JSONExportResponse represents the JSON export response structure
type JSONExportResponse struct {
	Products []map[string]string `json:"products"`
	Metadata ExportMetadata      `json:"metadata"`
}

// ExportMetadata contains metadata about the export
type ExportMetadata struct {
	ExportDate     time.Time          `json:"export_date"`
	CatalogVersion string             `json:"catalog_version"`
	TotalItems     int                `json:"total_items"`
	FiltersApplied domain.FilterState `json:"filters_applied"`
	Columns        []string           `json:"columns"`
}

// ExportHandler handles export operations
type ExportHandler struct {
	service ports.CatalogService
	cache   ports.CacheRepository
	logger  *slog.Logger
}

// NewExportHandler creates a new export handler. cache may be nil.
func NewExportHandler(service ports.CatalogService, cache ports.CacheRepository, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		cache:   cache,
		logger:  logger.With(slog.String("handler", "export")),
	}
}

// Export handles GET /api/products/export
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseExportParams(r)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	switch params.Format {
	case FormatXLSX:
		h.exportExcel(w, r, params)
	default:
		h.exportJSON(w, r, params)
	}
}

func (h *ExportHandler) exportExcel(w http.ResponseWriter, r *http.Request, params *ExportParams) {
	ctx := r.Context()

	h.logger.InfoContext(ctx, "starting Excel export",
		slog.String("filters", params.Filters.Fingerprint()))

	products, err := h.service.ExportProducts(ctx, params.Filters)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to retrieve products for export", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to retrieve data")
		return
	}

	excelData, err := generateExcelFile(products, params.Columns)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate Excel file", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to generate Excel file")
		return
	}

	filename := fmt.Sprintf("products_export_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(excelData)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if _, err := w.Write(excelData); err != nil {
		h.logger.ErrorContext(ctx, "failed to write Excel response", slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "Excel export completed",
		slog.Int("total_rows", len(products)),
		slog.String("filename", filename))
}

func (h *ExportHandler) exportJSON(w http.ResponseWriter, r *http.Request, params *ExportParams) {
	ctx := r.Context()
	version := h.service.Stats().Version

	cacheKey := redis_a.BuildKey(redis_a.PrefixExport, FormatJSON, version,
		params.Filters.Fingerprint(), strings.Join(params.Columns, ","))
	if h.cache != nil && version != "" {
		var cachedData []byte
		if err := h.cache.Get(ctx, cacheKey, &cachedData); err == nil {
			writeJSONExport(w, cachedData, "HIT")
			h.logger.DebugContext(ctx, "JSON export served from cache", slog.String("key", cacheKey))
			return
		}
	}

	products, err := h.service.ExportProducts(ctx, params.Filters)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to retrieve products for export", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to retrieve data")
		return
	}

	rows := make([]map[string]string, 0, len(products))
	cols := selectColumns(params.Columns)
	for i := range products {
		row := make(map[string]string, len(cols))
		for _, c := range cols {
			row[c.key] = c.value(&products[i])
		}
		rows = append(rows, row)
	}

	responseData, err := json.Marshal(JSONExportResponse{
		Products: rows,
		Metadata: ExportMetadata{
			ExportDate:     time.Now().UTC(),
			CatalogVersion: version,
			TotalItems:     len(rows),
			FiltersApplied: params.Filters,
			Columns:        columnKeys(cols),
		},
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal JSON export", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to generate JSON")
		return
	}

	writeJSONExport(w, responseData, "MISS")

	if h.cache != nil && version != "" {
		cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := h.cache.SetWithTTL(cacheCtx, cacheKey, responseData, exportCacheTTL); err != nil {
			h.logger.WarnContext(ctx, "failed to cache JSON export", slog.String("error", err.Error()))
		}
	}

	h.logger.InfoContext(ctx, "JSON export completed",
		slog.Int("total_rows", len(rows)))
}

func writeJSONExport(w http.ResponseWriter, data []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="products_export.json"`)
	w.Header().Set("X-Cache", cacheStatus)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (h *ExportHandler) parseExportParams(r *http.Request) (*ExportParams, error) {
	query := r.URL.Query()

	params := &ExportParams{
		Format:  strings.ToLower(strings.TrimSpace(query.Get("format"))),
		Filters: domain.ParseFilterValues(query),
	}
	if params.Format == "" {
		params.Format = FormatJSON
	}
	if params.Format != FormatJSON && params.Format != FormatXLSX {
		return nil, fmt.Errorf("unsupported export format %q", params.Format)
	}

	if raw := query.Get("columns"); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if !knownColumn(key) {
				return nil, fmt.Errorf("unknown export column %q", key)
			}
			params.Columns = append(params.Columns, key)
		}
	}

	return params, nil
}

// generateExcelFile creates an Excel file in memory from the products
func generateExcelFile(products []domain.Product, columns []string) ([]byte, error) {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet("Products")
	if err != nil {
		return nil, fmt.Errorf("failed to add worksheet: %w", err)
	}

	cols := selectColumns(columns)
	headerRow := sheet.AddRow()
	for _, c := range cols {
		cell := headerRow.AddCell()
		cell.Value = c.header
		cell.GetStyle().Font.Bold = true
		cell.GetStyle().Fill.PatternType = "solid"
		cell.GetStyle().Fill.FgColor = "CCCCCC"
	}

	for i := range products {
		row := sheet.AddRow()
		for _, c := range cols {
			cell := row.AddCell()
			if c.key == "id" {
				cell.SetInt(products[i].ID)
				continue
			}
			cell.Value = c.value(&products[i])
		}
	}

	sheet.SetColWidth(1, len(cols), 18)

	var buffer bytes.Buffer
	if err := file.Write(&buffer); err != nil {
		return nil, fmt.Errorf("failed to write Excel file to buffer: %w", err)
	}

	return buffer.Bytes(), nil
}

func selectColumns(keys []string) []exportColumn {
	if len(keys) == 0 {
		return exportColumns
	}
	out := make([]exportColumn, 0, len(keys))
	for _, key := range keys {
		for _, c := range exportColumns {
			if c.key == key {
				out = append(out, c)
			}
		}
	}
	return out
}

func knownColumn(key string) bool {
	for _, c := range exportColumns {
		if c.key == key {
			return true
		}
	}
	return false
}

func columnKeys(cols []exportColumn) []string {
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.key
	}
	return keys
}
