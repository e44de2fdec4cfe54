package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/overlap"
	"github.com/cronbox/cronbox-core/internal/repository"
)

// This file holds the three dispatch callbacks ClaimDue invokes inside its
// claiming transaction (§4.3/§4.4): decide the overlap action, then either
// submit the run, enqueue it, or log why it was skipped. next_run_at
// advances regardless of the decision — a skip or queue never blocks the
// entity's own recurrence, per the codified open question in DESIGN.md.

// dispatchCronTask returns the callback ClaimDue invokes inside its claiming
// transaction. The Allow/Queue branches write through q (the transaction
// ClaimDue passes in), not e.CronTasks/e.OverlapQueue's pool-backed methods —
// those write to the same cron_tasks row ClaimDue already holds under
// FOR UPDATE, and a second connection doing that write would block on the
// still-open transaction's lock until the transaction commits, which can't
// happen until this callback returns. Mirrors the teacher's ClaimAndFire,
// which inserts the fired job on tx for the same reason.
func (e *Engine) dispatchCronTask(ctx context.Context) func(repository.Querier, *domain.CronTask) (domain.OverlapResult, error) {
	return func(q repository.Querier, t *domain.CronTask) (domain.OverlapResult, error) {
		queueDepth, err := e.OverlapQueue.Depth(ctx, domain.TaskTypeCron, t.ID)
		if err != nil {
			return domain.OverlapResult{}, fmt.Errorf("overlap queue depth: %w", err)
		}
		decision := overlap.Decide(t.OverlapPolicy, t.RunningInstances, t.MaxInstances, queueDepth, t.MaxQueueSize)
		metrics.OverlapDecisionsTotal.WithLabelValues(string(domain.TaskTypeCron), string(decision.Action)).Inc()

		switch decision.Action {
		case domain.OverlapActionAllow:
			if err := e.CronTasks.SetRunningInstancesTx(ctx, q, t.ID, 1); err != nil {
				return decision, fmt.Errorf("increment running instances: %w", err)
			}
			e.submitCronTaskRun(t, 0)
		case domain.OverlapActionQueue:
			if _, err := e.OverlapQueue.PushTx(ctx, q, &domain.OverlapQueueEntry{
				WorkspaceID: t.WorkspaceID, TaskType: domain.TaskTypeCron, TaskID: t.ID, EnqueuedAt: time.Now().UTC(),
			}); err != nil {
				return decision, fmt.Errorf("enqueue cron task: %w", err)
			}
		default:
			e.logger.Warn("cron task dispatch did not run", "cron_task_id", t.ID, "reason", decision.SkippedReason())
		}
		return decision, nil
	}
}

func (e *Engine) dispatchDelayedTask(ctx context.Context) func(repository.Querier, *domain.DelayedTask) (domain.OverlapResult, error) {
	return func(q repository.Querier, t *domain.DelayedTask) (domain.OverlapResult, error) {
		queueDepth, err := e.OverlapQueue.Depth(ctx, domain.TaskTypeDelayed, t.ID)
		if err != nil {
			return domain.OverlapResult{}, fmt.Errorf("overlap queue depth: %w", err)
		}
		decision := overlap.Decide(t.OverlapPolicy, t.RunningInstances, t.MaxInstances, queueDepth, t.MaxQueueSize)
		metrics.OverlapDecisionsTotal.WithLabelValues(string(domain.TaskTypeDelayed), string(decision.Action)).Inc()

		switch decision.Action {
		case domain.OverlapActionAllow:
			if err := e.DelayedTasks.SetRunningInstancesTx(ctx, q, t.ID, 1); err != nil {
				return decision, fmt.Errorf("increment running instances: %w", err)
			}
			e.submitDelayedTaskRun(t)
		case domain.OverlapActionQueue:
			if _, err := e.OverlapQueue.PushTx(ctx, q, &domain.OverlapQueueEntry{
				WorkspaceID: t.WorkspaceID, TaskType: domain.TaskTypeDelayed, TaskID: t.ID, EnqueuedAt: time.Now().UTC(),
			}); err != nil {
				return decision, fmt.Errorf("enqueue delayed task: %w", err)
			}
		default:
			e.logger.Warn("delayed task dispatch did not run", "delayed_task_id", t.ID, "reason", decision.SkippedReason())
		}
		return decision, nil
	}
}

func (e *Engine) dispatchChain(ctx context.Context) func(repository.Querier, *domain.TaskChain) (domain.OverlapResult, error) {
	return func(q repository.Querier, c *domain.TaskChain) (domain.OverlapResult, error) {
		// TaskChain has no queue depth of its own in the data model beyond
		// overlap_queue_entries shared across task types; chains only ever
		// use allow/skip in practice since a multi-step run has no natural
		// single retry_delay to resume from mid-queue. maxQueueSize is passed
		// as 0 so overlap.Decide's queue branch degenerates to queue_full,
		// which is logged and treated the same as skip.
		queueDepth, err := e.OverlapQueue.Depth(ctx, domain.TaskTypeChain, c.ID)
		if err != nil {
			return domain.OverlapResult{}, fmt.Errorf("overlap queue depth: %w", err)
		}
		decision := overlap.Decide(c.OverlapPolicy, c.RunningInstances, c.MaxInstances, queueDepth, 0)
		metrics.OverlapDecisionsTotal.WithLabelValues(string(domain.TaskTypeChain), string(decision.Action)).Inc()

		switch decision.Action {
		case domain.OverlapActionAllow:
			if err := e.Chains.SetRunningInstancesTx(ctx, q, c.ID, 1); err != nil {
				return decision, fmt.Errorf("increment running instances: %w", err)
			}
			chainCopy := c
			e.pool.submit(func() {
				e.executeChain(context.Background(), chainCopy)
			})
		default:
			e.logger.Warn("chain dispatch did not run", "chain_id", c.ID, "reason", decision.SkippedReason())
		}
		return decision, nil
	}
}
