package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeGeneration = "generation:run"
	QueueGeneration    = "generation"
)

// Dispatcher hands an accepted run to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, runID string) error
}

// GenerationTaskPayload is the body of a generation task.
type GenerationTaskPayload struct {
	RunID string `json:"runId"`
}

// NewGenerationTask builds the asynq task for a run.
func NewGenerationTask(runID string) (*asynq.Task, error) {
	data, err := json.Marshal(GenerationTaskPayload{RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGeneration, data), nil
}

// AsynqDispatcher enqueues runs on the generation queue. Runs are never
// retried by the queue: a failed run is reported and the user resubmits.
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewAsynqDispatcher(client *asynq.Client, timeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, timeout: timeout}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, runID string) error {
	task, err := NewGenerationTask(runID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueGeneration),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
