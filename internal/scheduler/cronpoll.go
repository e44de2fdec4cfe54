package scheduler

import (
	"context"
	"time"
)

// cronPollBatchCap bounds how many due rows one CronPoll tick will drain
// before yielding back to the ticker, per the per-cycle cap (§4.4).
const cronPollBatchCap = 100

// RunCronPoll claims and dispatches due CronTasks until the due set is
// empty or cronPollBatchCap rows have been claimed this tick, then sleeps
// for the configured interval. Mirrors the teacher's Dispatcher.Start shape.
func (e *Engine) RunCronPoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("cron poll started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("cron poll shut down")
			return
		case <-ticker.C:
			e.drainCronPoll(ctx)
		}
	}
}

func (e *Engine) drainCronPoll(ctx context.Context) {
	dispatch := e.dispatchCronTask(ctx)
	for i := 0; i < cronPollBatchCap; i++ {
		task, _, err := e.CronTasks.ClaimDue(ctx, e.cronNextFire, dispatch)
		if err != nil {
			e.logger.ErrorContext(ctx, "cron poll claim due failed", "error", err)
			return
		}
		if task == nil {
			return
		}
	}
}
