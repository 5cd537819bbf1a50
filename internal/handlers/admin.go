package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ammerola/catalog-be/internal/core/ports"
)

// AdminHandler handles catalog maintenance operations
type AdminHandler struct {
	service   ports.CatalogService
	tasks     ports.TaskQueue
	warmPages int
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler. tasks may be nil, in which
// case reloads do not schedule cache maintenance.
func NewAdminHandler(service ports.CatalogService, tasks ports.TaskQueue, warmPages int, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:   service,
		tasks:     tasks,
		warmPages: warmPages,
		logger:    logger.With(slog.String("handler", "admin")),
	}
}

// Reload handles POST /api/reload
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.ReloadCatalog(ctx)
	if err != nil {
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to reload catalog")
		return
	}

	respondData(w, h.logger, result)
}

// ReloadCatalog reloads the catalog and, when its version changed,
// schedules a purge of the old version's cache and a warm of the new one.
// Scheduling failures are logged, not returned.
func (h *AdminHandler) ReloadCatalog(ctx context.Context) (*ports.ReloadResult, error) {
	result, err := h.service.Reload(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "catalog reload failed",
			slog.String("error", err.Error()))
		return nil, err
	}

	if result.Changed && h.tasks != nil {
		if result.PreviousVersion != "" {
			if err := h.tasks.EnqueueCachePurge(ctx, result.PreviousVersion); err != nil {
				h.logger.WarnContext(ctx, "failed to enqueue cache purge",
					slog.String("version", result.PreviousVersion),
					slog.String("error", err.Error()))
			}
		}
		if h.warmPages > 0 {
			if err := h.tasks.EnqueueCacheWarm(ctx, h.warmPages, true); err != nil {
				h.logger.WarnContext(ctx, "failed to enqueue cache warm",
					slog.String("version", result.Version),
					slog.String("error", err.Error()))
			}
		}
	}

	h.logger.InfoContext(ctx, "catalog reloaded",
		slog.String("version", result.Version),
		slog.Int("count", result.Count),
		slog.Bool("changed", result.Changed))

	return result, nil
}
