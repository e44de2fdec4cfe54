package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/notify"
)

const processMonitorSweepBatchCap = 200

// RunProcessMonitorSweep implements the deadline half of C8: HandleStartPing
// and HandleEndPing (driven by the ping-ingest HTTP handler) cover the happy
// path; this loop catches the monitors that never pinged in at all.
func (e *Engine) RunProcessMonitorSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("process monitor sweep started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("process monitor sweep shut down")
			return
		case <-ticker.C:
			e.sweepProcessMonitors(ctx)
		}
	}
}

func (e *Engine) sweepProcessMonitors(ctx context.Context) {
	now := time.Now().UTC()

	missedStarts, err := e.ProcessMons.SweepMissedStarts(ctx, now, processMonitorSweepBatchCap)
	if err != nil {
		e.logger.ErrorContext(ctx, "process monitor sweep missed starts failed", "error", err)
	}
	for _, m := range missedStarts {
		metrics.ProcessMonitorMissesTotal.WithLabelValues("start").Inc()
		if !m.NotifyOnMissedStart {
			continue
		}
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventMissedStart, WorkspaceID: m.WorkspaceID, EntityKind: "process_monitor",
			EntityID: m.ID, EntityName: m.Name, OccurredAt: now,
		})
	}

	missedEnds, err := e.ProcessMons.SweepMissedEnds(ctx, now, processMonitorSweepBatchCap)
	if err != nil {
		e.logger.ErrorContext(ctx, "process monitor sweep missed ends failed", "error", err)
	}
	for _, m := range missedEnds {
		metrics.ProcessMonitorMissesTotal.WithLabelValues("end").Inc()
		if !m.NotifyOnMissedEnd {
			continue
		}
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventMissedEnd, WorkspaceID: m.WorkspaceID, EntityKind: "process_monitor",
			EntityID: m.ID, EntityName: m.Name, OccurredAt: now,
		})
	}
}
