package repository

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// ProcessMonitorRepository backs ping ingest and C8's ProcessMonitorSweep
// loop. Each method applies one state-machine transition from §4.8
// atomically under a row lock.
type ProcessMonitorRepository interface {
	GetByStartToken(ctx context.Context, token string) (*domain.ProcessMonitor, error)
	GetByEndToken(ctx context.Context, token string) (*domain.ProcessMonitor, error)

	// HandleStartPing applies the waiting_start/running -> running transition
	// per the concurrency policy, logs the event, and returns the resulting
	// monitor plus the run id. ErrProcessMonitorConflict is returned when
	// policy=skip and a run is already in progress.
	HandleStartPing(ctx context.Context, monitorID string, at time.Time) (mon *domain.ProcessMonitor, runID string, wasFailed bool, err error)

	// HandleEndPing applies the running -> waiting_start transition, logs the
	// event, and recomputes next_expected_start/start_deadline.
	HandleEndPing(ctx context.Context, monitorID string, at time.Time, computeNextExpectedStart func(*domain.ProcessMonitor) time.Time) (mon *domain.ProcessMonitor, durationMS int64, err error)

	AppendEvent(ctx context.Context, ev *domain.ProcessMonitorEvent) error

	// SweepMissedStarts finds waiting_start monitors past start_deadline and
	// transitions them to missed_start.
	SweepMissedStarts(ctx context.Context, now time.Time, limit int) ([]*domain.ProcessMonitor, error)

	// SweepMissedEnds finds running monitors past end_deadline and
	// transitions them to missed_end.
	SweepMissedEnds(ctx context.Context, now time.Time, limit int) ([]*domain.ProcessMonitor, error)
}
