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

type TaskChainRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewTaskChainRepository(pool *pgxpool.Pool, logger *slog.Logger) *TaskChainRepository {
	return &TaskChainRepository{pool: pool, logger: logger.With("component", "taskchain_repo")}
}

const taskChainColumns = `
	id, workspace_id, name, trigger_type, cron_expr, execute_at, timezone,
	stop_on_failure, overlap_policy, max_instances,
	notify_on_failure, notify_on_success, notify_on_partial,
	is_active, is_paused, next_run_at, running_instances, created_at, updated_at`

const chainStepColumns = `
	id, chain_id, step_order, is_enabled, method, url, headers, body,
	timeout_seconds, retry_count, retry_delay_seconds, extract_variables,
	condition, continue_on_failure`

func (r *TaskChainRepository) Create(ctx context.Context, c *domain.TaskChain) (*domain.TaskChain, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO task_chains (
			workspace_id, name, trigger_type, cron_expr, execute_at, timezone,
			stop_on_failure, overlap_policy, max_instances,
			notify_on_failure, notify_on_success, notify_on_partial,
			is_active, is_paused
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+taskChainColumns,
		c.WorkspaceID, c.Name, c.TriggerType, c.CronExpr, c.ExecuteAt, c.Timezone,
		c.StopOnFailure, c.OverlapPolicy, c.MaxInstances,
		c.NotifyOnFailure, c.NotifyOnSuccess, c.NotifyOnPartial,
		c.IsActive, c.IsPaused,
	)
	created, err := scanTaskChain(row)
	if err != nil {
		return nil, err
	}

	for _, step := range c.Steps {
		if err := insertChainStep(ctx, tx, created.ID, step); err != nil {
			return nil, err
		}
	}
	created.Steps = c.Steps

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func insertChainStep(ctx context.Context, tx pgx.Tx, chainID string, step *domain.ChainStep) error {
	return tx.QueryRow(ctx, `
		INSERT INTO chain_steps (
			chain_id, step_order, is_enabled, method, url, headers, body,
			timeout_seconds, retry_count, retry_delay_seconds, extract_variables,
			condition, continue_on_failure
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		chainID, step.StepOrder, step.IsEnabled, step.Method, step.URL, step.Headers, step.Body,
		step.TimeoutSeconds, step.RetryCount, step.RetryDelaySeconds, step.ExtractVariables,
		step.Condition, step.ContinueOnFailure,
	).Scan(&step.ID)
}

func (r *TaskChainRepository) GetByID(ctx context.Context, id, workspaceID string) (*domain.TaskChain, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskChainColumns+`
		FROM task_chains WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	c, err := scanTaskChain(row)
	if err != nil {
		return nil, err
	}
	steps, err := loadChainSteps(ctx, r.pool, c.ID)
	if err != nil {
		return nil, err
	}
	c.Steps = steps
	return c, nil
}

func loadChainSteps(ctx context.Context, q queryer, chainID string) ([]*domain.ChainStep, error) {
	rows, err := q.Query(ctx, `SELECT `+chainStepColumns+`
		FROM chain_steps WHERE chain_id = $1 ORDER BY step_order ASC`, chainID)
	if err != nil {
		return nil, fmt.Errorf("load chain steps: %w", err)
	}
	defer rows.Close()

	var steps []*domain.ChainStep
	for rows.Next() {
		var s domain.ChainStep
		if err := rows.Scan(
			&s.ID, &s.ChainID, &s.StepOrder, &s.IsEnabled, &s.Method, &s.URL, &s.Headers, &s.Body,
			&s.TimeoutSeconds, &s.RetryCount, &s.RetryDelaySeconds, &s.ExtractVariables,
			&s.Condition, &s.ContinueOnFailure,
		); err != nil {
			return nil, fmt.Errorf("scan chain step: %w", err)
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

// ClaimDue claims one due chain (cron recurrence or one-shot delayed
// trigger), loads its steps, advances/consumes the trigger, and invokes
// dispatch before committing — the same pattern as CronTaskRepository but
// covering two distinct trigger kinds in one query.
func (r *TaskChainRepository) ClaimDue(
	ctx context.Context,
	computeNext func(*domain.TaskChain) time.Time,
	dispatch func(q repository.Querier, c *domain.TaskChain) (domain.OverlapResult, error),
) (*domain.TaskChain, *domain.OverlapResult, error) {
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

	row := tx.QueryRow(ctx, `SELECT `+taskChainColumns+`
		FROM task_chains
		WHERE is_active AND NOT is_paused
		  AND (
		    (trigger_type = 'cron' AND next_run_at <= NOW())
		    OR (trigger_type = 'delayed' AND execute_at <= NOW())
		  )
		ORDER BY COALESCE(next_run_at, execute_at) ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	c, err := scanTaskChain(row)
	if err != nil {
		if errors.Is(err, domain.ErrTaskChainNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	steps, err := loadChainSteps(ctx, tx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	c.Steps = steps

	switch c.TriggerType {
	case domain.ChainTriggerCron:
		next := computeNext(c)
		if _, err := tx.Exec(ctx, `UPDATE task_chains SET next_run_at = $2, updated_at = NOW() WHERE id = $1`, c.ID, next); err != nil {
			return nil, nil, fmt.Errorf("advance chain %s: %w", c.ID, err)
		}
		c.NextRunAt = &next
	case domain.ChainTriggerDelayed:
		if _, err := tx.Exec(ctx, `UPDATE task_chains SET is_active = false, updated_at = NOW() WHERE id = $1`, c.ID); err != nil {
			return nil, nil, fmt.Errorf("consume one-shot chain %s: %w", c.ID, err)
		}
		c.IsActive = false
	}

	result, err := dispatch(tx, c)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch chain %s: %w", c.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return c, &result, nil
}

func (r *TaskChainRepository) SetRunningInstances(ctx context.Context, id string, delta int) error {
	return r.SetRunningInstancesTx(ctx, r.pool, id, delta)
}

func (r *TaskChainRepository) SetRunningInstancesTx(ctx context.Context, q repository.Querier, id string, delta int) error {
	_, err := q.Exec(ctx,
		`UPDATE task_chains SET running_instances = GREATEST(0, running_instances + $2), updated_at = NOW() WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust chain running_instances: %w", err)
	}
	return nil
}

func (r *TaskChainRepository) ResetStaleRunningInstances(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE task_chains
		SET running_instances = 0, updated_at = NOW()
		WHERE running_instances > 0 AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale chain instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTaskChain(row rowScanner) (*domain.TaskChain, error) {
	var c domain.TaskChain
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &c.TriggerType, &c.CronExpr, &c.ExecuteAt, &c.Timezone,
		&c.StopOnFailure, &c.OverlapPolicy, &c.MaxInstances,
		&c.NotifyOnFailure, &c.NotifyOnSuccess, &c.NotifyOnPartial,
		&c.IsActive, &c.IsPaused, &c.NextRunAt, &c.RunningInstances, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskChainNotFound
		}
		return nil, fmt.Errorf("scan task chain: %w", err)
	}
	return &c, nil
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// loadChainSteps run inside or outside a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
