package repository

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// ExecutionRepository persists C2 records for CronTask/DelayedTask attempts.
type ExecutionRepository interface {
	Start(ctx context.Context, exec *domain.Execution) (*domain.Execution, error)
	Finish(ctx context.Context, exec *domain.Execution) error

	// DeleteOlderThan runs the hourly per-workspace retention GC (§4.2,
	// ExecutionGC loop): deletes up to limit of the workspace's rows older
	// than cutoff. The caller computes cutoff from one configured retention
	// shared by every workspace.
	DeleteOlderThan(ctx context.Context, workspaceID string, cutoff time.Time, limit int) (int, error)
}

// OverlapQueueRepository backs the FIFO queue used by overlap_policy=queue
// (C3) and drained by C4's QueueDrain loop.
type OverlapQueueRepository interface {
	Push(ctx context.Context, entry *domain.OverlapQueueEntry) (position int, err error)

	// PushTx is the same insert run against q instead of the pool, so
	// dispatch can commit it inside ClaimDue's claiming transaction rather
	// than racing that transaction's row lock.
	PushTx(ctx context.Context, q Querier, entry *domain.OverlapQueueEntry) (position int, err error)

	// Depth returns the current queue length for one entity.
	Depth(ctx context.Context, taskType domain.TaskType, taskID string) (int, error)

	// PopOldest atomically removes and returns the oldest queued entry for
	// one entity, or nil if the queue is empty. Called by the overlap
	// controller's release step when capacity frees up, and by QueueDrain.
	PopOldest(ctx context.Context, taskType domain.TaskType, taskID string) (*domain.OverlapQueueEntry, error)

	// ListDrainable returns the oldest queued entry of every entity with a
	// non-empty queue, for QueueDrain to re-dispatch. It does not filter on
	// capacity; QueueDrain checks RunningInstances < MaxInstances itself.
	ListDrainable(ctx context.Context, limit int) ([]*domain.OverlapQueueEntry, error)
}
