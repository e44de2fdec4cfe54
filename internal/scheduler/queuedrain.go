package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

const queueDrainBatchLimit = 100

// RunQueueDrain is the safety net for overlap_policy=queue: the overlap
// controller's release step already drains one entry the instant capacity
// frees up, but a crash between release and drain, or capacity freed by an
// external cause (e.g. StaleInstanceCleanup), can leave a queued entry
// stranded. This loop periodically re-checks every entity with a non-empty
// queue and spare capacity.
func (e *Engine) RunQueueDrain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("queue drain started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("queue drain shut down")
			return
		case <-ticker.C:
			e.drainQueue(ctx)
		}
	}
}

func (e *Engine) drainQueue(ctx context.Context) {
	entries, err := e.OverlapQueue.ListDrainable(ctx, queueDrainBatchLimit)
	if err != nil {
		e.logger.ErrorContext(ctx, "queue drain list drainable failed", "error", err)
		return
	}
	for _, entry := range entries {
		switch entry.TaskType {
		case domain.TaskTypeCron:
			if t, err := e.CronTasks.GetByID(ctx, entry.TaskID, entry.WorkspaceID); err == nil && t.RunningInstances >= t.MaxInstances {
				continue
			}
			e.drainOneCronTask(ctx, entry.TaskID, entry.WorkspaceID)
		case domain.TaskTypeDelayed:
			if t, err := e.DelayedTasks.GetByID(ctx, entry.TaskID, entry.WorkspaceID); err == nil && t.RunningInstances >= t.MaxInstances {
				continue
			}
			e.drainOneDelayedTask(ctx, entry.TaskID, entry.WorkspaceID)
		case domain.TaskTypeChain:
			if c, err := e.Chains.GetByID(ctx, entry.TaskID, entry.WorkspaceID); err == nil && c.RunningInstances >= c.MaxInstances {
				continue
			}
			e.drainOneChain(ctx, entry.TaskID, entry.WorkspaceID)
		default:
			e.logger.Warn("queue drain saw unknown task type", "task_type", entry.TaskType, "task_id", entry.TaskID)
		}
	}
}
