package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
)

type ExecutionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewExecutionRepository(pool *pgxpool.Pool, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{pool: pool, logger: logger.With("component", "execution_repo")}
}

func (r *ExecutionRepository) Start(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO executions (
			workspace_id, task_type, task_id, retry_attempt, worker_id, status, started_at
		) VALUES ($1, $2, $3, $4, $5, 'running', $6)
		RETURNING id`,
		exec.WorkspaceID, exec.TaskType, exec.TaskID, exec.RetryAttempt, exec.WorkerID, exec.StartedAt,
	).Scan(&exec.ID)
	if err != nil {
		return nil, fmt.Errorf("start execution: %w", err)
	}
	return exec, nil
}

func (r *ExecutionRepository) Finish(ctx context.Context, exec *domain.Execution) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, finished_at = NOW(), duration_ms = $3,
		    http_result = $4, icmp_result = $5, tcp_result = $6,
		    error = $7, error_kind = $8
		WHERE id = $1`,
		exec.ID, exec.Status, exec.DurationMS,
		exec.HTTPResult, exec.ICMPResult, exec.TCPResult,
		exec.Error, exec.ErrorKind,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

// DeleteOlderThan implements the hourly per-workspace retention GC (§4.2):
// deletes execution rows older than cutoff for one workspace, capped at
// limit per call so a large backlog doesn't hold one long-running delete.
func (r *ExecutionRepository) DeleteOlderThan(ctx context.Context, workspaceID string, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM executions
		WHERE id IN (
			SELECT id FROM executions
			WHERE workspace_id = $1 AND started_at < $2
			LIMIT $3
		)`, workspaceID, cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old executions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
