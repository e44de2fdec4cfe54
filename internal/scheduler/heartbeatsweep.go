package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/notify"
)

const heartbeatSweepBatchCap = 200

// RunHeartbeatSweep implements C7: heartbeats are passive, CronBox-core never
// pings them, so the only scheduler-driven work is escalating a stale gap
// through waiting/healthy -> late -> dead and notifying each transition.
func (e *Engine) RunHeartbeatSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("heartbeat sweep started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("heartbeat sweep shut down")
			return
		case <-ticker.C:
			e.sweepHeartbeats(ctx)
		}
	}
}

func (e *Engine) sweepHeartbeats(ctx context.Context) {
	now := time.Now().UTC()

	late, err := e.Heartbeats.SweepLate(ctx, now, heartbeatSweepBatchCap)
	if err != nil {
		e.logger.ErrorContext(ctx, "heartbeat sweep late failed", "error", err)
	}
	for _, hb := range late {
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventFailure, WorkspaceID: hb.WorkspaceID, EntityKind: "heartbeat",
			EntityID: hb.ID, EntityName: hb.Name, OccurredAt: now,
			Data: map[string]any{"status": string(domain.HeartbeatLate)},
		})
		metrics.HeartbeatTransitionsTotal.WithLabelValues(string(domain.HeartbeatLate)).Inc()
	}

	dead, err := e.Heartbeats.SweepDead(ctx, now, heartbeatSweepBatchCap)
	if err != nil {
		e.logger.ErrorContext(ctx, "heartbeat sweep dead failed", "error", err)
	}
	for _, hb := range dead {
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventFailure, WorkspaceID: hb.WorkspaceID, EntityKind: "heartbeat",
			EntityID: hb.ID, EntityName: hb.Name, OccurredAt: now,
			Data: map[string]any{"status": string(domain.HeartbeatDead)},
		})
		metrics.HeartbeatTransitionsTotal.WithLabelValues(string(domain.HeartbeatDead)).Inc()
	}
}
