package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/repository"
)

type DelayedTaskRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDelayedTaskRepository(pool *pgxpool.Pool, logger *slog.Logger) *DelayedTaskRepository {
	return &DelayedTaskRepository{pool: pool, logger: logger.With("component", "delayedtask_repo")}
}

const delayedTaskColumns = `
	id, workspace_id, name, protocol, http_params, icmp_params, tcp_params,
	execute_at, status, timeout_seconds, retry_count, retry_delay_seconds,
	retry_attempt, overlap_policy, max_instances, max_queue_size,
	execution_timeout_sec, running_instances, idempotency_key, worker_id,
	created_at, updated_at`

func (r *DelayedTaskRepository) Create(ctx context.Context, t *domain.DelayedTask) (*domain.DelayedTask, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO delayed_tasks (
			workspace_id, name, protocol, http_params, icmp_params, tcp_params,
			execute_at, status, timeout_seconds, retry_count, retry_delay_seconds,
			overlap_policy, max_instances, max_queue_size, execution_timeout_sec,
			idempotency_key, worker_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING `+delayedTaskColumns,
		t.WorkspaceID, t.Name, t.Protocol, t.HTTP, t.ICMP, t.TCP,
		t.ExecuteAt, t.TimeoutSeconds, t.RetryCount, t.RetryDelaySeconds,
		t.OverlapPolicy, t.MaxInstances, t.MaxQueueSize, t.ExecutionTimeoutSec,
		t.IdempotencyKey, t.WorkerID,
	)
	created, err := scanDelayedTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateIdempotency
		}
		return nil, err
	}
	return created, nil
}

func (r *DelayedTaskRepository) GetByID(ctx context.Context, id, workspaceID string) (*domain.DelayedTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+delayedTaskColumns+`
		FROM delayed_tasks WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return scanDelayedTask(row)
}

// ClaimDue claims one pending row whose execute_at has passed, invokes
// dispatch, flips the row to running only when dispatch's decision allows
// execution, and commits — same shape as CronTaskRepository.ClaimDue minus
// the recurrence advance. A row dispatch queues or skips stays pending.
func (r *DelayedTaskRepository) ClaimDue(
	ctx context.Context,
	dispatch func(q repository.Querier, t *domain.DelayedTask) (domain.OverlapResult, error),
) (*domain.DelayedTask, *domain.OverlapResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+delayedTaskColumns+`
		FROM delayed_tasks
		WHERE status = 'pending' AND execute_at <= NOW()
		ORDER BY execute_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	t, err := scanDelayedTask(row)
	if err != nil {
		if errors.Is(err, domain.ErrDelayedTaskNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	result, err := dispatch(tx, t)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch delayed task %s: %w", t.ID, err)
	}

	if result.ShouldExecute() {
		if _, err := tx.Exec(ctx, `UPDATE delayed_tasks SET status = 'running', updated_at = NOW() WHERE id = $1`, t.ID); err != nil {
			return nil, nil, fmt.Errorf("mark delayed task running %s: %w", t.ID, err)
		}
		t.Status = domain.DelayedRunning
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return t, &result, nil
}

func (r *DelayedTaskRepository) MarkSuccess(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE delayed_tasks SET status = 'success', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark delayed task success: %w", err)
	}
	return nil
}

func (r *DelayedTaskRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE delayed_tasks SET status = 'failed', updated_at = NOW() WHERE id = $1`, id)
	_ = lastError // surfaced via the Execution row, not stored redundantly here
	if err != nil {
		return fmt.Errorf("mark delayed task failed: %w", err)
	}
	return nil
}

func (r *DelayedTaskRepository) Requeue(ctx context.Context, id string, nextAttempt int, executeAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE delayed_tasks
		SET status = 'pending', retry_attempt = $2, execute_at = $3, updated_at = NOW()
		WHERE id = $1`,
		id, nextAttempt, executeAt,
	)
	if err != nil {
		return fmt.Errorf("requeue delayed task: %w", err)
	}
	return nil
}

func (r *DelayedTaskRepository) SetRunningInstances(ctx context.Context, id string, delta int) error {
	return r.SetRunningInstancesTx(ctx, r.pool, id, delta)
}

func (r *DelayedTaskRepository) SetRunningInstancesTx(ctx context.Context, q repository.Querier, id string, delta int) error {
	_, err := q.Exec(ctx,
		`UPDATE delayed_tasks SET running_instances = GREATEST(0, running_instances + $2), updated_at = NOW() WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust delayed task running_instances: %w", err)
	}
	return nil
}

func (r *DelayedTaskRepository) ResetStaleRunningInstances(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE delayed_tasks
		SET running_instances = 0, updated_at = NOW()
		WHERE running_instances > 0
		  AND execution_timeout_sec IS NOT NULL
		  AND updated_at + (execution_timeout_sec || ' seconds')::interval < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale delayed task instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanDelayedTask(row rowScanner) (*domain.DelayedTask, error) {
	var t domain.DelayedTask
	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.Name, &t.Protocol, &t.HTTP, &t.ICMP, &t.TCP,
		&t.ExecuteAt, &t.Status, &t.TimeoutSeconds, &t.RetryCount, &t.RetryDelaySeconds,
		&t.RetryAttempt, &t.OverlapPolicy, &t.MaxInstances, &t.MaxQueueSize,
		&t.ExecutionTimeoutSec, &t.RunningInstances, &t.IdempotencyKey, &t.WorkerID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDelayedTaskNotFound
		}
		return nil, fmt.Errorf("scan delayed task: %w", err)
	}
	return &t, nil
}
