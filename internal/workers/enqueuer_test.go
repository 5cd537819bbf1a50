package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/catalog-be/internal/workers"
	"github.com/ammerola/catalog-be/test/helpers"
)

type recordingClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: "maintenance", Type: task.Type()}, nil
}

func optionTypes(opts []asynq.Option) map[asynq.OptionType]any {
	out := make(map[asynq.OptionType]any, len(opts))
	for _, o := range opts {
		out[o.Type()] = o.Value()
	}
	return out
}

func TestEnqueuer_EnqueueCacheWarm(t *testing.T) {
	client := &recordingClient{}
	e := workers.NewEnqueuer(client, "maintenance", 4, helpers.TestLogger())

	require.NoError(t, e.EnqueueCacheWarm(context.Background(), 3, true))

	require.Len(t, client.tasks, 1)
	assert.Equal(t, workers.TypeCatalogWarm, client.tasks[0].Type())

	var payload workers.WarmPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, 3, payload.Pages)
	assert.True(t, payload.IncludeSizes)

	opts := optionTypes(client.opts[0])
	assert.Equal(t, "maintenance", opts[asynq.QueueOpt])
	assert.Equal(t, 4, opts[asynq.MaxRetryOpt])
	assert.Contains(t, opts, asynq.UniqueOpt)
}

func TestEnqueuer_EnqueueCachePurge(t *testing.T) {
	client := &recordingClient{}
	e := workers.NewEnqueuer(client, "", 2, helpers.TestLogger())

	require.NoError(t, e.EnqueueCachePurge(context.Background(), "abc123"))

	require.Len(t, client.tasks, 1)
	assert.Equal(t, workers.TypeCatalogPurge, client.tasks[0].Type())
	opts := optionTypes(client.opts[0])
	assert.Equal(t, "default", opts[asynq.QueueOpt])
	assert.Equal(t, "purge:abc123", opts[asynq.TaskIDOpt])

	assert.Error(t, e.EnqueueCachePurge(context.Background(), ""))
}

func TestEnqueuer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "duplicate_warm_is_not_an_error", err: asynq.ErrDuplicateTask},
		{name: "conflicting_purge_is_not_an_error", err: asynq.ErrTaskIDConflict},
		{name: "broker_failure", err: errors.New("dial tcp: refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := workers.NewEnqueuer(&recordingClient{err: tt.err}, "default", 1, helpers.TestLogger())
			err := e.EnqueueCacheWarm(context.Background(), 1, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
