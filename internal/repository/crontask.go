package repository

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// CronTaskRepository backs C4's CronPoll loop. ClaimDue implements the
// due-selection protocol from §4.4: one row claimed per call, advanced and
// (by the caller, inside the same transaction via Dispatch) enqueued before
// commit.
type CronTaskRepository interface {
	Create(ctx context.Context, t *domain.CronTask) (*domain.CronTask, error)
	GetByID(ctx context.Context, id, workspaceID string) (*domain.CronTask, error)
	Delete(ctx context.Context, id, workspaceID string) error

	// ClaimDue selects one due, active, unpaused row under
	// FOR UPDATE SKIP LOCKED, invokes computeNext to get the new NextRunAt,
	// advances it on the row, and invokes dispatch (an overlap-decision +
	// enqueue callback) before committing. Returns the claimed task (nil if
	// none due) and the OverlapResult dispatch produced.
	ClaimDue(
		ctx context.Context,
		computeNext func(*domain.CronTask) time.Time,
		dispatch func(q Querier, t *domain.CronTask) (domain.OverlapResult, error),
	) (*domain.CronTask, *domain.OverlapResult, error)

	// UpdateAfterRun records the outcome of one execution: last_status,
	// consecutive_failures, last_run_at.
	UpdateAfterRun(ctx context.Context, id string, success bool, at time.Time) error

	// SetRunningInstances is used by the overlap controller's release step
	// and by stale-instance cleanup.
	SetRunningInstances(ctx context.Context, id string, delta int) error

	// SetRunningInstancesTx is the same adjustment run against q instead of
	// the pool, so dispatch can commit it inside ClaimDue's claiming
	// transaction rather than racing that transaction's row lock.
	SetRunningInstancesTx(ctx context.Context, q Querier, id string, delta int) error
	ResetStaleRunningInstances(ctx context.Context, cutoff time.Time) (int, error)

	// RecomputeMissingNextRunAt sets next_run_at for active, unpaused rows
	// where it is null (NextRunRecompute loop, 60s).
	RecomputeMissingNextRunAt(ctx context.Context, computeNext func(*domain.CronTask) time.Time, limit int) (int, error)
}
