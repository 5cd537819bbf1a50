// internal/workers/tasks.go
package workers

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeCatalogWarm  = "catalog:warm"
	TypeCatalogPurge = "catalog:purge"
)

// Task outcomes recorded by the worker metrics
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// WarmPayload represents the payload for cache warm jobs
type WarmPayload struct {
	Pages        int  `json:"pages"`
	IncludeSizes bool `json:"include_sizes"`
}

// PurgePayload represents the payload for cache purge jobs
type PurgePayload struct {
	Version string `json:"version"`
}

// WarmResult summarizes a finished warm job
type WarmResult struct {
	Version        string `json:"version"`
	PagesWarmed    int    `json:"pages_warmed"`
	SizesWarmed    int    `json:"sizes_warmed"`
	ProcessingTime string `json:"processing_time"`
}

// NewWarmTask builds a catalog:warm task
func NewWarmTask(pages int, includeSizes bool) (*asynq.Task, error) {
	if pages < 1 {
		return nil, fmt.Errorf("warm pages must be positive, got %d", pages)
	}
	b, err := json.Marshal(WarmPayload{Pages: pages, IncludeSizes: includeSizes})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal warm payload: %w", err)
	}
	return asynq.NewTask(TypeCatalogWarm, b), nil
}

// NewPurgeTask builds a catalog:purge task
func NewPurgeTask(version string) (*asynq.Task, error) {
	if version == "" {
		return nil, fmt.Errorf("purge version is required")
	}
	b, err := json.Marshal(PurgePayload{Version: version})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal purge payload: %w", err)
	}
	return asynq.NewTask(TypeCatalogPurge, b), nil
}
