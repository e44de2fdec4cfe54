package repository

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// HeartbeatRepository backs ping ingest and C7's HeartbeatSweep loop.
type HeartbeatRepository interface {
	GetByToken(ctx context.Context, token string) (*domain.Heartbeat, error)

	// RecordPing sets last_ping_at=now, status=healthy, clears
	// consecutive_misses, and appends a capped-history ping row. Returns the
	// updated heartbeat and whether this ping follows a late/dead state
	// (for recovery notification).
	RecordPing(ctx context.Context, id string, at time.Time, sourceIP string) (hb *domain.Heartbeat, wasFailed bool, err error)

	// SweepLate finds waiting/healthy heartbeats whose gap now exceeds
	// expected_interval+grace_period, transitions them to late, and returns
	// them for notification dispatch. Each row is processed independently —
	// one bad row must not abort the sweep.
	SweepLate(ctx context.Context, now time.Time, limit int) ([]*domain.Heartbeat, error)

	// SweepDead finds late heartbeats whose gap now exceeds 3x the expected
	// interval and transitions them to dead.
	SweepDead(ctx context.Context, now time.Time, limit int) ([]*domain.Heartbeat, error)
}
