package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/catalog-be/internal/core/ports"
)

// TaskClient is the part of *asynq.Client the enqueuer uses
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Statically assert that *asynq.Client implements TaskClient.
var _ TaskClient = (*asynq.Client)(nil)

// Enqueuer schedules catalog cache maintenance on asynq
type Enqueuer struct {
	client   TaskClient
	queue    string
	maxRetry int
	logger   *slog.Logger
}

// Statically assert that *Enqueuer implements the TaskQueue interface.
var _ ports.TaskQueue = (*Enqueuer)(nil)

// NewEnqueuer creates a new enqueuer. An empty queue means "default".
func NewEnqueuer(client TaskClient, queue string, maxRetry int, logger *slog.Logger) *Enqueuer {
	if queue == "" {
		queue = "default"
	}
	return &Enqueuer{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
		logger:   logger.With(slog.String("component", "enqueuer")),
	}
}

// EnqueueCacheWarm schedules a warm of the current catalog. Warms requested
// within a minute of each other collapse into one.
func (e *Enqueuer) EnqueueCacheWarm(ctx context.Context, pages int, includeSizes bool) error {
	task, err := NewWarmTask(pages, includeSizes)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, task,
		asynq.Queue(e.queue),
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(time.Minute))
}

// EnqueueCachePurge schedules removal of a superseded catalog version
func (e *Enqueuer) EnqueueCachePurge(ctx context.Context, version string) error {
	task, err := NewPurgeTask(version)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, task,
		asynq.Queue(e.queue),
		asynq.MaxRetry(e.maxRetry),
		asynq.TaskID("purge:"+version),
		asynq.Retention(time.Hour))
}

func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		e.logger.DebugContext(ctx, "task already queued",
			slog.String("type", task.Type()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}

	e.logger.InfoContext(ctx, "task enqueued",
		slog.String("type", task.Type()),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue))
	return nil
}
