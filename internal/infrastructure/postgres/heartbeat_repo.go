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
)

type HeartbeatRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewHeartbeatRepository(pool *pgxpool.Pool, logger *slog.Logger) *HeartbeatRepository {
	return &HeartbeatRepository{pool: pool, logger: logger.With("component", "heartbeat_repo")}
}

const heartbeatColumns = `
	id, workspace_id, name, expected_interval_seconds, grace_period_seconds,
	ping_token, status, last_ping_at, consecutive_misses, created_at, updated_at`

func (r *HeartbeatRepository) GetByToken(ctx context.Context, token string) (*domain.Heartbeat, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+heartbeatColumns+` FROM heartbeats WHERE ping_token = $1`, token)
	return scanHeartbeat(row)
}

// RecordPing applies one ping under a row lock: resets status to healthy,
// clears consecutive_misses, and appends a capped ping-history row. The
// caller is told whether the prior state was late/dead so it can fire a
// recovery notification (§4.7).
func (r *HeartbeatRepository) RecordPing(ctx context.Context, id string, at time.Time, sourceIP string) (*domain.Heartbeat, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+heartbeatColumns+` FROM heartbeats WHERE id = $1 FOR UPDATE`, id)
	hb, err := scanHeartbeat(row)
	if err != nil {
		return nil, false, err
	}
	if hb.Status == domain.HeartbeatPaused {
		return nil, false, domain.ErrHeartbeatPaused
	}
	wasFailed := hb.Status == domain.HeartbeatLate || hb.Status == domain.HeartbeatDead

	if _, err := tx.Exec(ctx, `
		UPDATE heartbeats
		SET status = 'healthy', last_ping_at = $2, consecutive_misses = 0, updated_at = NOW()
		WHERE id = $1`, id, at,
	); err != nil {
		return nil, false, fmt.Errorf("record ping: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO heartbeat_pings (heartbeat_id, received_at, source_ip) VALUES ($1, $2, $3)`,
		id, at, sourceIP,
	); err != nil {
		return nil, false, fmt.Errorf("insert ping history: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM heartbeat_pings
		WHERE heartbeat_id = $1 AND id NOT IN (
			SELECT id FROM heartbeat_pings WHERE heartbeat_id = $1 ORDER BY received_at DESC LIMIT 100
		)`, id,
	); err != nil {
		return nil, false, fmt.Errorf("trim ping history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	hb.Status = domain.HeartbeatHealthy
	hb.LastPingAt = &at
	hb.ConsecutiveMisses = 0
	return hb, wasFailed, nil
}

// SweepLate transitions waiting/healthy heartbeats whose gap now exceeds
// expected_interval+grace_period to late. Each row commits independently so
// one malformed row can't abort the sweep, mirroring the per-row isolation
// in the source's check_missed_starts/check_missed_ends.
func (r *HeartbeatRepository) SweepLate(ctx context.Context, now time.Time, limit int) ([]*domain.Heartbeat, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE status IN ('waiting', 'healthy')
		  AND last_ping_at IS NOT NULL
		  AND last_ping_at + ((expected_interval_seconds + grace_period_seconds) || ' seconds')::interval < $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query late heartbeats: %w", err)
	}
	defer rows.Close()

	var candidates []*domain.Heartbeat
	for rows.Next() {
		hb, scanErr := scanHeartbeat(rows)
		if scanErr != nil {
			r.logger.Error("skipping malformed heartbeat row", "error", scanErr)
			continue
		}
		candidates = append(candidates, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate late heartbeats: %w", err)
	}

	var transitioned []*domain.Heartbeat
	for _, hb := range candidates {
		if _, err := r.pool.Exec(ctx, `
			UPDATE heartbeats SET status = 'late', consecutive_misses = consecutive_misses + 1, updated_at = NOW()
			WHERE id = $1 AND status = $2`, hb.ID, hb.Status,
		); err != nil {
			r.logger.Error("failed to transition heartbeat to late", "heartbeat_id", hb.ID, "error", err)
			continue
		}
		hb.Status = domain.HeartbeatLate
		transitioned = append(transitioned, hb)
	}
	return transitioned, nil
}

// SweepDead transitions late heartbeats whose gap now exceeds 3x the
// expected interval to dead.
func (r *HeartbeatRepository) SweepDead(ctx context.Context, now time.Time, limit int) ([]*domain.Heartbeat, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE status = 'late'
		  AND last_ping_at IS NOT NULL
		  AND last_ping_at + ((3 * expected_interval_seconds) || ' seconds')::interval < $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead heartbeats: %w", err)
	}
	defer rows.Close()

	var candidates []*domain.Heartbeat
	for rows.Next() {
		hb, scanErr := scanHeartbeat(rows)
		if scanErr != nil {
			r.logger.Error("skipping malformed heartbeat row", "error", scanErr)
			continue
		}
		candidates = append(candidates, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead heartbeats: %w", err)
	}

	var transitioned []*domain.Heartbeat
	for _, hb := range candidates {
		if _, err := r.pool.Exec(ctx, `
			UPDATE heartbeats SET status = 'dead', updated_at = NOW() WHERE id = $1 AND status = 'late'`, hb.ID,
		); err != nil {
			r.logger.Error("failed to transition heartbeat to dead", "heartbeat_id", hb.ID, "error", err)
			continue
		}
		hb.Status = domain.HeartbeatDead
		transitioned = append(transitioned, hb)
	}
	return transitioned, nil
}

func scanHeartbeat(row rowScanner) (*domain.Heartbeat, error) {
	var hb domain.Heartbeat
	err := row.Scan(
		&hb.ID, &hb.WorkspaceID, &hb.Name, &hb.ExpectedIntervalSeconds, &hb.GracePeriodSeconds,
		&hb.PingToken, &hb.Status, &hb.LastPingAt, &hb.ConsecutiveMisses, &hb.CreatedAt, &hb.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHeartbeatNotFound
		}
		return nil, fmt.Errorf("scan heartbeat: %w", err)
	}
	return &hb, nil
}
