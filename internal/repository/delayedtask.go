package repository

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// DelayedTaskRepository backs C4's DelayedPoll loop.
type DelayedTaskRepository interface {
	Create(ctx context.Context, t *domain.DelayedTask) (*domain.DelayedTask, error)
	GetByID(ctx context.Context, id, workspaceID string) (*domain.DelayedTask, error)

	// ClaimDue selects one pending row whose execute_at has passed, under
	// FOR UPDATE SKIP LOCKED, invokes dispatch, and transitions the row to
	// running only when dispatch allows execution, before committing.
	ClaimDue(
		ctx context.Context,
		dispatch func(q Querier, t *domain.DelayedTask) (domain.OverlapResult, error),
	) (*domain.DelayedTask, *domain.OverlapResult, error)

	// MarkSuccess / MarkFailed close a terminal attempt.
	MarkSuccess(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Requeue puts a row back to pending with RetryAttempt+1 and a deferred
	// ExecuteAt (now + retry_delay_seconds).
	Requeue(ctx context.Context, id string, nextAttempt int, executeAt time.Time) error

	SetRunningInstances(ctx context.Context, id string, delta int) error

	// SetRunningInstancesTx is the same adjustment run against q instead of
	// the pool, so dispatch can commit it inside ClaimDue's claiming
	// transaction rather than racing that transaction's row lock.
	SetRunningInstancesTx(ctx context.Context, q Querier, id string, delta int) error
	ResetStaleRunningInstances(ctx context.Context, cutoff time.Time) (int, error)
}
