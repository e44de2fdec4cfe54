package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/repository"
)

// OverlapQueueRepository backs overlap_policy=queue (C3), a strict FIFO
// ordered by enqueued_at per entity (§5).
type OverlapQueueRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewOverlapQueueRepository(pool *pgxpool.Pool, logger *slog.Logger) *OverlapQueueRepository {
	return &OverlapQueueRepository{pool: pool, logger: logger.With("component", "overlap_queue_repo")}
}

const overlapQueueColumns = `id, workspace_id, task_type, task_id, enqueued_at, retry_attempt, initial_variables`

func (r *OverlapQueueRepository) Push(ctx context.Context, entry *domain.OverlapQueueEntry) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	position, err := r.PushTx(ctx, tx, entry)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return position, nil
}

// PushTx is Push run against q instead of a dedicated transaction, so a
// caller already holding an open transaction (ClaimDue's dispatch callback)
// can enqueue on that same connection rather than a second one.
func (r *OverlapQueueRepository) PushTx(ctx context.Context, q repository.Querier, entry *domain.OverlapQueueEntry) (int, error) {
	if err := q.QueryRow(ctx, `
		INSERT INTO overlap_queue_entries (workspace_id, task_type, task_id, enqueued_at, retry_attempt, initial_variables)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.WorkspaceID, entry.TaskType, entry.TaskID, entry.EnqueuedAt, entry.RetryAttempt, entry.InitialVariables,
	).Scan(&entry.ID); err != nil {
		return 0, fmt.Errorf("push overlap queue entry: %w", err)
	}

	var position int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM overlap_queue_entries
		WHERE task_type = $1 AND task_id = $2 AND enqueued_at <= $3`,
		entry.TaskType, entry.TaskID, entry.EnqueuedAt,
	).Scan(&position); err != nil {
		return 0, fmt.Errorf("compute queue position: %w", err)
	}

	return position, nil
}

func (r *OverlapQueueRepository) Depth(ctx context.Context, taskType domain.TaskType, taskID string) (int, error) {
	var depth int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM overlap_queue_entries WHERE task_type = $1 AND task_id = $2`,
		taskType, taskID,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// PopOldest atomically removes and returns the oldest queued entry for one
// entity, under FOR UPDATE SKIP LOCKED so concurrent drainers never double-pop.
func (r *OverlapQueueRepository) PopOldest(ctx context.Context, taskType domain.TaskType, taskID string) (*domain.OverlapQueueEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+overlapQueueColumns+`
		FROM overlap_queue_entries
		WHERE task_type = $1 AND task_id = $2
		ORDER BY enqueued_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, taskType, taskID)

	entry, err := scanOverlapQueueEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM overlap_queue_entries WHERE id = $1`, entry.ID); err != nil {
		return nil, fmt.Errorf("delete popped overlap queue entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return entry, nil
}

// ListDrainable returns the oldest queued entry for every entity that has at
// least one, for C4's QueueDrain loop to attempt re-dispatch against current
// capacity.
func (r *OverlapQueueRepository) ListDrainable(ctx context.Context, limit int) ([]*domain.OverlapQueueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (task_type, task_id) `+overlapQueueColumns+`
		FROM overlap_queue_entries
		ORDER BY task_type, task_id, enqueued_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list drainable queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.OverlapQueueEntry
	for rows.Next() {
		e, err := scanOverlapQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanOverlapQueueEntry(row rowScanner) (*domain.OverlapQueueEntry, error) {
	var e domain.OverlapQueueEntry
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.TaskType, &e.TaskID, &e.EnqueuedAt, &e.RetryAttempt, &e.InitialVariables)
	if err != nil {
		return nil, fmt.Errorf("scan overlap queue entry: %w", err)
	}
	return &e, nil
}
