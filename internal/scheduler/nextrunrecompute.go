package scheduler

import (
	"context"
	"time"
)

const nextRunRecomputeBatchLimit = 500

// RunNextRunRecompute backfills next_run_at for active CronTasks where it is
// null — created with a cron expression whose first fire hasn't been
// computed yet, or left null by a migration. Chains derive their own
// NextRunAt at claim time via ClaimDue's computeNext, so only CronTask needs
// this sweep.
func (e *Engine) RunNextRunRecompute(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("next run recompute started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("next run recompute shut down")
			return
		case <-ticker.C:
			n, err := e.CronTasks.RecomputeMissingNextRunAt(ctx, e.cronNextFire, nextRunRecomputeBatchLimit)
			if err != nil {
				e.logger.ErrorContext(ctx, "next run recompute failed", "error", err)
				continue
			}
			if n > 0 {
				e.logger.Info("next run recompute filled rows", "count", n)
			}
		}
	}
}
