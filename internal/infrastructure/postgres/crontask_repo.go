package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/repository"
)

// CronTaskRepository is the Postgres-backed repository.CronTaskRepository.
// ClaimDue's transaction shape — SELECT ... FOR UPDATE SKIP LOCKED, advance,
// dispatch, commit — is lifted directly from the teacher's
// ScheduleRepository.ClaimAndFire.
type CronTaskRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCronTaskRepository(pool *pgxpool.Pool, logger *slog.Logger) *CronTaskRepository {
	return &CronTaskRepository{pool: pool, logger: logger.With("component", "crontask_repo")}
}

const cronTaskColumns = `
	id, workspace_id, name, protocol, http_params, icmp_params, tcp_params,
	cron_expr, timezone, timeout_seconds, retry_count, retry_delay_seconds,
	overlap_policy, max_instances, max_queue_size, execution_timeout_sec,
	running_instances, is_active, is_paused,
	last_run_at, next_run_at, last_status, consecutive_failures,
	worker_id, created_at, updated_at`

func (r *CronTaskRepository) Create(ctx context.Context, t *domain.CronTask) (*domain.CronTask, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cron_tasks (
			workspace_id, name, protocol, http_params, icmp_params, tcp_params,
			cron_expr, timezone, timeout_seconds, retry_count, retry_delay_seconds,
			overlap_policy, max_instances, max_queue_size, execution_timeout_sec,
			is_active, is_paused, worker_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING `+cronTaskColumns,
		t.WorkspaceID, t.Name, t.Protocol, t.HTTP, t.ICMP, t.TCP,
		t.CronExpr, t.Timezone, t.TimeoutSeconds, t.RetryCount, t.RetryDelaySeconds,
		t.OverlapPolicy, t.MaxInstances, t.MaxQueueSize, t.ExecutionTimeoutSec,
		t.IsActive, t.IsPaused, t.WorkerID,
	)
	return scanCronTask(row)
}

func (r *CronTaskRepository) GetByID(ctx context.Context, id, workspaceID string) (*domain.CronTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+cronTaskColumns+`
		FROM cron_tasks WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return scanCronTask(row)
}

func (r *CronTaskRepository) Delete(ctx context.Context, id, workspaceID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cron_tasks WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return fmt.Errorf("delete cron task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCronTaskNotFound
	}
	return nil
}

// ClaimDue claims one due, active, unpaused row, advances next_run_at using
// computeNext, lets dispatch decide overlap handling and enqueue the run,
// then commits — all inside one transaction so a crash mid-dispatch never
// leaves next_run_at advanced without the corresponding run recorded, or
// vice versa.
func (r *CronTaskRepository) ClaimDue(
	ctx context.Context,
	computeNext func(*domain.CronTask) time.Time,
	dispatch func(q repository.Querier, t *domain.CronTask) (domain.OverlapResult, error),
) (*domain.CronTask, *domain.OverlapResult, error) {
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

	row := tx.QueryRow(ctx, `SELECT `+cronTaskColumns+`
		FROM cron_tasks
		WHERE is_active AND NOT is_paused AND next_run_at <= NOW()
		ORDER BY next_run_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	t, err := scanCronTask(row)
	if err != nil {
		if errors.Is(err, domain.ErrCronTaskNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	next := computeNext(t)
	if _, err := tx.Exec(ctx,
		`UPDATE cron_tasks SET next_run_at = $2, updated_at = NOW() WHERE id = $1`,
		t.ID, next,
	); err != nil {
		return nil, nil, fmt.Errorf("advance cron task %s: %w", t.ID, err)
	}
	t.NextRunAt = &next

	result, err := dispatch(tx, t)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch cron task %s: %w", t.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return t, &result, nil
}

func (r *CronTaskRepository) UpdateAfterRun(ctx context.Context, id string, success bool, at time.Time) error {
	status := "failed"
	consecutiveExpr := "consecutive_failures + 1"
	if success {
		status = "success"
		consecutiveExpr = "0"
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE cron_tasks
		SET last_status = $2, consecutive_failures = %s, last_run_at = $3, updated_at = NOW()
		WHERE id = $1`, consecutiveExpr),
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("update cron task after run: %w", err)
	}
	return nil
}

func (r *CronTaskRepository) SetRunningInstances(ctx context.Context, id string, delta int) error {
	return r.SetRunningInstancesTx(ctx, r.pool, id, delta)
}

func (r *CronTaskRepository) SetRunningInstancesTx(ctx context.Context, q repository.Querier, id string, delta int) error {
	_, err := q.Exec(ctx,
		`UPDATE cron_tasks SET running_instances = GREATEST(0, running_instances + $2), updated_at = NOW() WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust cron task running_instances: %w", err)
	}
	return nil
}

// ResetStaleRunningInstances clears running_instances on rows whose
// execution_timeout_sec has elapsed since last_run_at, so a worker that died
// mid-run doesn't permanently wedge overlap accounting shut. Rows with a null
// execution_timeout_sec are never touched (§9's "null means no reset").
func (r *CronTaskRepository) ResetStaleRunningInstances(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cron_tasks
		SET running_instances = 0, updated_at = NOW()
		WHERE running_instances > 0
		  AND execution_timeout_sec IS NOT NULL
		  AND last_run_at IS NOT NULL
		  AND last_run_at + (execution_timeout_sec || ' seconds')::interval < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale cron task instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *CronTaskRepository) RecomputeMissingNextRunAt(ctx context.Context, computeNext func(*domain.CronTask) time.Time, limit int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT `+cronTaskColumns+`
		FROM cron_tasks
		WHERE is_active AND NOT is_paused AND next_run_at IS NULL
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, fmt.Errorf("select missing next_run_at: %w", err)
	}

	var tasks []*domain.CronTask
	for rows.Next() {
		t, scanErr := scanCronTask(rows)
		if scanErr != nil {
			rows.Close()
			return 0, scanErr
		}
		tasks = append(tasks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate missing next_run_at: %w", err)
	}

	for _, t := range tasks {
		next := computeNext(t)
		if _, err := tx.Exec(ctx, `UPDATE cron_tasks SET next_run_at = $2, updated_at = NOW() WHERE id = $1`, t.ID, next); err != nil {
			return 0, fmt.Errorf("recompute next_run_at for %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(tasks), nil
}

func scanCronTask(row rowScanner) (*domain.CronTask, error) {
	var t domain.CronTask
	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.Name, &t.Protocol, &t.HTTP, &t.ICMP, &t.TCP,
		&t.CronExpr, &t.Timezone, &t.TimeoutSeconds, &t.RetryCount, &t.RetryDelaySeconds,
		&t.OverlapPolicy, &t.MaxInstances, &t.MaxQueueSize, &t.ExecutionTimeoutSec,
		&t.RunningInstances, &t.IsActive, &t.IsPaused,
		&t.LastRunAt, &t.NextRunAt, &t.LastStatus, &t.ConsecutiveFailures,
		&t.WorkerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCronTaskNotFound
		}
		return nil, fmt.Errorf("scan cron task: %w", err)
	}
	return &t, nil
}
