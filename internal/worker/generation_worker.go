package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/service"
	"github.com/contactcopilof/APPLI-VIDEO/internal/workflow"
)

// Executor runs a pending generation.
type Executor interface {
	Execute(ctx context.Context, runID string) error
}

// GenerationWorker processes generation tasks
type GenerationWorker struct {
	exec Executor
}

func NewGenerationWorker(exec Executor) *GenerationWorker {
	return &GenerationWorker{exec: exec}
}

// ProcessTask handles generation task processing. The outcome is recorded by
// the workflow, so failures are never retried by the queue.
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.GenerationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log := logger.Named("worker").With().Str("run_id", payload.RunID).Logger()
	log.Info().Msg("starting generation")

	err := w.exec.Execute(ctx, payload.RunID)
	switch {
	case err == nil:
		log.Info().Msg("generation finished")
		return nil
	case errors.Is(err, workflow.ErrStaleRun):
		log.Warn().Msg("skipping stale generation task")
		return nil
	default:
		return fmt.Errorf("generation %s: %v: %w", payload.RunID, err, asynq.SkipRetry)
	}
}
