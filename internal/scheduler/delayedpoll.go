package scheduler

import (
	"context"
	"time"
)

const delayedPollBatchCap = 100

// RunDelayedPoll claims and dispatches DelayedTasks whose execute_at has
// passed, including retries requeued by Requeue, until the due set is
// empty or delayedPollBatchCap rows have been claimed this tick.
func (e *Engine) RunDelayedPoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("delayed poll started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("delayed poll shut down")
			return
		case <-ticker.C:
			e.drainDelayedPoll(ctx)
		}
	}
}

func (e *Engine) drainDelayedPoll(ctx context.Context) {
	dispatch := e.dispatchDelayedTask(ctx)
	for i := 0; i < delayedPollBatchCap; i++ {
		task, _, err := e.DelayedTasks.ClaimDue(ctx, dispatch)
		if err != nil {
			e.logger.ErrorContext(ctx, "delayed poll claim due failed", "error", err)
			return
		}
		if task == nil {
			return
		}
	}
}
