package repository

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// TaskChainRepository backs C4's ChainPoll loop.
type TaskChainRepository interface {
	Create(ctx context.Context, c *domain.TaskChain) (*domain.TaskChain, error)
	GetByID(ctx context.Context, id, workspaceID string) (*domain.TaskChain, error)

	// ClaimDue selects one due chain (cron or delayed trigger) with its
	// steps, advances NextRunAt (cron) or marks the one-shot consumed
	// (delayed), and invokes dispatch before committing.
	ClaimDue(
		ctx context.Context,
		computeNext func(*domain.TaskChain) time.Time,
		dispatch func(q Querier, c *domain.TaskChain) (domain.OverlapResult, error),
	) (*domain.TaskChain, *domain.OverlapResult, error)

	SetRunningInstances(ctx context.Context, id string, delta int) error

	// SetRunningInstancesTx is the same adjustment run against q instead of
	// the pool, so dispatch can commit it inside ClaimDue's claiming
	// transaction rather than racing that transaction's row lock.
	SetRunningInstancesTx(ctx context.Context, q Querier, id string, delta int) error
	ResetStaleRunningInstances(ctx context.Context, cutoff time.Time) (int, error)
}

// ChainExecutionRepository persists C6 run records.
type ChainExecutionRepository interface {
	Start(ctx context.Context, exec *domain.ChainExecution) (*domain.ChainExecution, error)
	Finish(ctx context.Context, id string, status domain.ChainStatus, errMsg string) error

	StartStep(ctx context.Context, step *domain.StepExecution) (*domain.StepExecution, error)
	FinishStep(ctx context.Context, step *domain.StepExecution) error
}
