package worker

import (
	"context"
	"time"

	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
)

// InlineDispatcher executes runs on a goroutine of the API process. It is
// used when no asynq worker is running.
type InlineDispatcher struct {
	exec    Executor
	base    context.Context
	timeout time.Duration
}

// NewInlineDispatcher runs every dispatched run under base, bounded by timeout.
func NewInlineDispatcher(base context.Context, exec Executor, timeout time.Duration) *InlineDispatcher {
	return &InlineDispatcher{exec: exec, base: base, timeout: timeout}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, runID string) error {
	go func() {
		ctx := d.base
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(d.base, d.timeout)
			defer cancel()
		}
		if err := d.exec.Execute(ctx, runID); err != nil {
			logger.Named("worker").Warn().Err(err).Str("run_id", runID).Msg("inline generation ended with error")
		}
	}()
	return nil
}
