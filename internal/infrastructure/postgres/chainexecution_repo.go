package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
)

type ChainExecutionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewChainExecutionRepository(pool *pgxpool.Pool, logger *slog.Logger) *ChainExecutionRepository {
	return &ChainExecutionRepository{pool: pool, logger: logger.With("component", "chain_execution_repo")}
}

func (r *ChainExecutionRepository) Start(ctx context.Context, exec *domain.ChainExecution) (*domain.ChainExecution, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chain_executions (workspace_id, chain_id, status, started_at)
		VALUES ($1, $2, 'running', $3)
		RETURNING id`,
		exec.WorkspaceID, exec.ChainID, exec.StartedAt,
	).Scan(&exec.ID)
	if err != nil {
		return nil, fmt.Errorf("start chain execution: %w", err)
	}
	return exec, nil
}

func (r *ChainExecutionRepository) Finish(ctx context.Context, id string, status domain.ChainStatus, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE chain_executions SET status = $2, error = $3, finished_at = NOW() WHERE id = $1`,
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("finish chain execution: %w", err)
	}
	return nil
}

func (r *ChainExecutionRepository) StartStep(ctx context.Context, step *domain.StepExecution) (*domain.StepExecution, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO step_executions (chain_execution_id, step_id, step_order, outcome, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		step.ChainExecutionID, step.StepID, step.StepOrder, step.Outcome, step.StartedAt,
	).Scan(&step.ID)
	if err != nil {
		return nil, fmt.Errorf("start step execution: %w", err)
	}
	return step, nil
}

func (r *ChainExecutionRepository) FinishStep(ctx context.Context, step *domain.StepExecution) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE step_executions
		SET outcome = $2, status_code = $3, response_body = $4, extracted_vars = $5,
		    condition_details = $6, error = $7, error_kind = $8, finished_at = NOW()
		WHERE id = $1`,
		step.ID, step.Outcome, step.StatusCode, step.ResponseBody, step.ExtractedVars,
		step.ConditionDetails, step.Error, step.ErrorKind,
	)
	if err != nil {
		return fmt.Errorf("finish step execution: %w", err)
	}
	return nil
}
