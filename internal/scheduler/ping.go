package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/notify"
)

// This file is the counterpart to heartbeatsweep.go/processmonitorsweep.go:
// those two cover the silence half of C7/C8, this one covers the ping half,
// both driven by the public ping-ingest HTTP routes rather than a ticker.

// RecordHeartbeatPing applies one inbound ping, used by the public
// /ping/heartbeat/:token route. sourceIP is best-effort, taken from the
// request's remote address or a trusted proxy header by the caller.
func (e *Engine) RecordHeartbeatPing(ctx context.Context, hb *domain.Heartbeat, sourceIP string) {
	now := time.Now().UTC()
	updated, wasFailed, err := e.Heartbeats.RecordPing(ctx, hb.ID, now, sourceIP)
	if err != nil {
		e.logger.ErrorContext(ctx, "record heartbeat ping failed", "heartbeat_id", hb.ID, "error", err)
		return
	}
	if wasFailed {
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventRecovery, WorkspaceID: updated.WorkspaceID, EntityKind: "heartbeat",
			EntityID: updated.ID, EntityName: updated.Name, OccurredAt: now,
		})
	}
}

// HandleProcessMonitorStartPing applies one inbound start ping, used by the
// public /ping/process/start/:token route. ErrProcessMonitorConflict bubbles
// up unchanged so the handler can map it to 409.
func (e *Engine) HandleProcessMonitorStartPing(ctx context.Context, monitorID string) (*domain.ProcessMonitor, string, error) {
	now := time.Now().UTC()
	mon, runID, wasFailed, err := e.ProcessMons.HandleStartPing(ctx, monitorID, now)
	if err != nil {
		return nil, "", err
	}
	if wasFailed && mon.NotifyOnRecovery {
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventRecovery, WorkspaceID: mon.WorkspaceID, EntityKind: "process_monitor",
			EntityID: mon.ID, EntityName: mon.Name, OccurredAt: now,
		})
	}
	return mon, runID, nil
}

// HandleProcessMonitorEndPing applies one inbound end ping, used by the
// public /ping/process/end/:token route.
func (e *Engine) HandleProcessMonitorEndPing(ctx context.Context, monitorID string) (*domain.ProcessMonitor, error) {
	now := time.Now().UTC()
	mon, durationMS, err := e.ProcessMons.HandleEndPing(ctx, monitorID, now, e.processMonitorNextFire)
	if err != nil {
		return nil, err
	}
	if mon.NotifyOnSuccess {
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventSuccess, WorkspaceID: mon.WorkspaceID, EntityKind: "process_monitor",
			EntityID: mon.ID, EntityName: mon.Name, OccurredAt: now,
			Data: map[string]any{"duration_ms": durationMS},
		})
	}
	return mon, nil
}
