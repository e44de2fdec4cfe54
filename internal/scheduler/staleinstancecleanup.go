package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/metrics"
)

// staleInstanceCutoff bounds how long a running_instances increment can
// survive without a matching release before it's assumed orphaned by a
// crashed executor and reset to zero.
const staleInstanceCutoff = 2 * time.Hour

// RunStaleInstanceCleanup resets running_instances counters left non-zero by
// an executor that crashed mid-run, the same self-healing role the teacher's
// Reaper plays for its single job table, generalized across all three
// overlap-tracked entity types.
func (e *Engine) RunStaleInstanceCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("stale instance cleanup started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stale instance cleanup shut down")
			return
		case <-ticker.C:
			e.cleanupStaleInstances(ctx)
		}
	}
}

func (e *Engine) cleanupStaleInstances(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-staleInstanceCutoff)

	if n, err := e.CronTasks.ResetStaleRunningInstances(ctx, cutoff); err != nil {
		e.logger.ErrorContext(ctx, "stale instance cleanup cron tasks failed", "error", err)
	} else if n > 0 {
		e.logger.Warn("stale instance cleanup reset cron tasks", "count", n)
		metrics.StaleInstancesResetTotal.WithLabelValues(string(domain.TaskTypeCron)).Add(float64(n))
	}

	if n, err := e.DelayedTasks.ResetStaleRunningInstances(ctx, cutoff); err != nil {
		e.logger.ErrorContext(ctx, "stale instance cleanup delayed tasks failed", "error", err)
	} else if n > 0 {
		e.logger.Warn("stale instance cleanup reset delayed tasks", "count", n)
		metrics.StaleInstancesResetTotal.WithLabelValues(string(domain.TaskTypeDelayed)).Add(float64(n))
	}

	if n, err := e.Chains.ResetStaleRunningInstances(ctx, cutoff); err != nil {
		e.logger.ErrorContext(ctx, "stale instance cleanup chains failed", "error", err)
	} else if n > 0 {
		e.logger.Warn("stale instance cleanup reset chains", "count", n)
		metrics.StaleInstancesResetTotal.WithLabelValues(string(domain.TaskTypeChain)).Add(float64(n))
	}
}
