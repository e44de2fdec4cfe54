package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronbox/cronbox-core/internal/domain"
)

type ProcessMonitorRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProcessMonitorRepository(pool *pgxpool.Pool, logger *slog.Logger) *ProcessMonitorRepository {
	return &ProcessMonitorRepository{pool: pool, logger: logger.With("component", "process_monitor_repo")}
}

const processMonitorColumns = `
	id, workspace_id, name, schedule_type, cron_expr, interval, exact_time, timezone,
	start_grace_period_seconds, end_timeout_seconds, start_token, end_token,
	concurrency_policy, notify_on_missed_start, notify_on_missed_end,
	notify_on_recovery, notify_on_success,
	status, current_run_id, last_start_at, next_expected_start, start_deadline, end_deadline,
	success_count, failure_count, created_at, updated_at`

func (r *ProcessMonitorRepository) GetByStartToken(ctx context.Context, token string) (*domain.ProcessMonitor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+processMonitorColumns+` FROM process_monitors WHERE start_token = $1`, token)
	return scanProcessMonitor(row)
}

func (r *ProcessMonitorRepository) GetByEndToken(ctx context.Context, token string) (*domain.ProcessMonitor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+processMonitorColumns+` FROM process_monitors WHERE end_token = $1`, token)
	return scanProcessMonitor(row)
}

// HandleStartPing implements the §4.8 transition table for a start-ping:
// waiting_start -> running always; running -> running only under
// policy=replace (closing the stale run first); running with policy=skip
// rejects with ErrProcessMonitorConflict.
func (r *ProcessMonitorRepository) HandleStartPing(ctx context.Context, monitorID string, at time.Time) (*domain.ProcessMonitor, string, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+processMonitorColumns+` FROM process_monitors WHERE id = $1 FOR UPDATE`, monitorID)
	mon, err := scanProcessMonitor(row)
	if err != nil {
		return nil, "", false, err
	}
	if mon.Status == domain.ProcessPaused {
		return nil, "", false, domain.ErrProcessMonitorPaused
	}

	wasFailed := mon.WasFailed()

	if mon.Status == domain.ProcessRunning {
		if mon.ConcurrencyPolicy == domain.ConcurrencySkip {
			return nil, "", false, domain.ErrProcessMonitorConflict
		}
		// policy=replace: close out the stale run as a timeout before starting the new one.
		if mon.CurrentRunID != nil {
			if err := appendEventTx(ctx, tx, mon.ID, *mon.CurrentRunID, domain.ProcessEventTimeout, nil, ""); err != nil {
				return nil, "", false, err
			}
		}
	}

	runID := uuid.NewString()
	endDeadline := at.Add(time.Duration(mon.EndTimeoutSeconds) * time.Second)

	if _, err := tx.Exec(ctx, `
		UPDATE process_monitors
		SET status = 'running', current_run_id = $2, last_start_at = $3, end_deadline = $4, updated_at = NOW()
		WHERE id = $1`, mon.ID, runID, at, endDeadline,
	); err != nil {
		return nil, "", false, fmt.Errorf("record start ping: %w", err)
	}

	if err := appendEventTx(ctx, tx, mon.ID, runID, domain.ProcessEventStart, nil, ""); err != nil {
		return nil, "", false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", false, fmt.Errorf("commit tx: %w", err)
	}

	mon.Status = domain.ProcessRunning
	mon.CurrentRunID = &runID
	mon.LastStartAt = &at
	mon.EndDeadline = &endDeadline
	return mon, runID, wasFailed, nil
}

// HandleEndPing applies running -> waiting_start, computes duration,
// increments success_count, and recomputes next_expected_start/
// start_deadline for the following cycle.
func (r *ProcessMonitorRepository) HandleEndPing(ctx context.Context, monitorID string, at time.Time, computeNextExpectedStart func(*domain.ProcessMonitor) time.Time) (*domain.ProcessMonitor, int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+processMonitorColumns+` FROM process_monitors WHERE id = $1 FOR UPDATE`, monitorID)
	mon, err := scanProcessMonitor(row)
	if err != nil {
		return nil, 0, err
	}
	if mon.Status != domain.ProcessRunning {
		return nil, 0, domain.ErrProcessMonitorNotRunning
	}

	var durationMS int64
	if mon.LastStartAt != nil {
		durationMS = at.Sub(*mon.LastStartAt).Milliseconds()
	}

	nextExpected := computeNextExpectedStart(mon)
	startDeadline := nextExpected.Add(time.Duration(mon.StartGracePeriodSeconds) * time.Second)

	if _, err := tx.Exec(ctx, `
		UPDATE process_monitors
		SET status = 'waiting_start', current_run_id = NULL,
		    success_count = success_count + 1,
		    next_expected_start = $2, start_deadline = $3, updated_at = NOW()
		WHERE id = $1`, mon.ID, nextExpected, startDeadline,
	); err != nil {
		return nil, 0, fmt.Errorf("record end ping: %w", err)
	}

	if mon.CurrentRunID != nil {
		if err := appendEventTx(ctx, tx, mon.ID, *mon.CurrentRunID, domain.ProcessEventEnd,
			map[string]any{"duration_ms": durationMS}, ""); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit tx: %w", err)
	}

	mon.Status = domain.ProcessWaitingStart
	mon.CurrentRunID = nil
	mon.SuccessCount++
	mon.NextExpectedStart = &nextExpected
	mon.StartDeadline = &startDeadline
	return mon, durationMS, nil
}

func (r *ProcessMonitorRepository) AppendEvent(ctx context.Context, ev *domain.ProcessMonitorEvent) error {
	return appendEventTx(ctx, r.pool, ev.MonitorID, ev.RunID, ev.EventType, ev.Payload, ev.SourceIP)
}

// appendEventTx inserts one event row and trims the monitor's event log to
// its most recent 100, per §4.8.
func appendEventTx(ctx context.Context, q execer, monitorID, runID string, eventType domain.ProcessEventType, payload map[string]any, sourceIP string) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO process_monitor_events (monitor_id, run_id, event_type, payload, source_ip, occurred_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		monitorID, runID, eventType, payload, sourceIP,
	); err != nil {
		return fmt.Errorf("append process monitor event: %w", err)
	}
	if _, err := q.Exec(ctx, `
		DELETE FROM process_monitor_events
		WHERE monitor_id = $1 AND id NOT IN (
			SELECT id FROM process_monitor_events WHERE monitor_id = $1 ORDER BY occurred_at DESC LIMIT 100
		)`, monitorID,
	); err != nil {
		return fmt.Errorf("trim process monitor events: %w", err)
	}
	return nil
}

// SweepMissedStarts transitions waiting_start monitors past start_deadline to
// missed_start. Each row is handled independently so one bad row can't abort
// the sweep, per the source's check_missed_starts isolation.
func (r *ProcessMonitorRepository) SweepMissedStarts(ctx context.Context, now time.Time, limit int) ([]*domain.ProcessMonitor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+processMonitorColumns+`
		FROM process_monitors
		WHERE status = 'waiting_start' AND start_deadline IS NOT NULL AND start_deadline < $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query missed starts: %w", err)
	}
	defer rows.Close()

	var candidates []*domain.ProcessMonitor
	for rows.Next() {
		mon, scanErr := scanProcessMonitor(rows)
		if scanErr != nil {
			r.logger.Error("skipping malformed process monitor row", "error", scanErr)
			continue
		}
		candidates = append(candidates, mon)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missed starts: %w", err)
	}

	var transitioned []*domain.ProcessMonitor
	for _, mon := range candidates {
		if _, err := r.pool.Exec(ctx, `
			UPDATE process_monitors SET status = 'missed_start', failure_count = failure_count + 1, updated_at = NOW()
			WHERE id = $1 AND status = 'waiting_start'`, mon.ID,
		); err != nil {
			r.logger.Error("failed to transition monitor to missed_start", "monitor_id", mon.ID, "error", err)
			continue
		}
		if err := appendEventTx(ctx, r.pool, mon.ID, "", domain.ProcessEventMissed, nil, ""); err != nil {
			r.logger.Error("failed to append missed_start event", "monitor_id", mon.ID, "error", err)
		}
		mon.Status = domain.ProcessMissedStart
		transitioned = append(transitioned, mon)
	}
	return transitioned, nil
}

// SweepMissedEnds transitions running monitors past end_deadline to
// missed_end.
func (r *ProcessMonitorRepository) SweepMissedEnds(ctx context.Context, now time.Time, limit int) ([]*domain.ProcessMonitor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+processMonitorColumns+`
		FROM process_monitors
		WHERE status = 'running' AND end_deadline IS NOT NULL AND end_deadline < $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query missed ends: %w", err)
	}
	defer rows.Close()

	var candidates []*domain.ProcessMonitor
	for rows.Next() {
		mon, scanErr := scanProcessMonitor(rows)
		if scanErr != nil {
			r.logger.Error("skipping malformed process monitor row", "error", scanErr)
			continue
		}
		candidates = append(candidates, mon)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missed ends: %w", err)
	}

	var transitioned []*domain.ProcessMonitor
	for _, mon := range candidates {
		if _, err := r.pool.Exec(ctx, `
			UPDATE process_monitors SET status = 'missed_end', failure_count = failure_count + 1, updated_at = NOW()
			WHERE id = $1 AND status = 'running'`, mon.ID,
		); err != nil {
			r.logger.Error("failed to transition monitor to missed_end", "monitor_id", mon.ID, "error", err)
			continue
		}
		if mon.CurrentRunID != nil {
			if err := appendEventTx(ctx, r.pool, mon.ID, *mon.CurrentRunID, domain.ProcessEventTimeout, nil, ""); err != nil {
				r.logger.Error("failed to append missed_end event", "monitor_id", mon.ID, "error", err)
			}
		}
		mon.Status = domain.ProcessMissedEnd
		transitioned = append(transitioned, mon)
	}
	return transitioned, nil
}

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func scanProcessMonitor(row rowScanner) (*domain.ProcessMonitor, error) {
	var m domain.ProcessMonitor
	err := row.Scan(
		&m.ID, &m.WorkspaceID, &m.Name, &m.ScheduleType, &m.CronExpr, &m.Interval, &m.ExactTime, &m.Timezone,
		&m.StartGracePeriodSeconds, &m.EndTimeoutSeconds, &m.StartToken, &m.EndToken,
		&m.ConcurrencyPolicy, &m.NotifyOnMissedStart, &m.NotifyOnMissedEnd,
		&m.NotifyOnRecovery, &m.NotifyOnSuccess,
		&m.Status, &m.CurrentRunID, &m.LastStartAt, &m.NextExpectedStart, &m.StartDeadline, &m.EndDeadline,
		&m.SuccessCount, &m.FailureCount, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProcessMonitorNotFound
		}
		return nil, fmt.Errorf("scan process monitor: %w", err)
	}
	return &m, nil
}
