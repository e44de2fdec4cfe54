package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/metrics"
)

const executionGCBatchLimit = 5000

// RunExecutionGC implements the retention sweep from §4.2: every workspace
// keeps its own Execution history for executionRetention before rows are
// deleted. Per-workspace plan overrides are out of scope here (DESIGN.md) —
// every workspace is swept with the same configured default.
func (e *Engine) RunExecutionGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("execution gc started", "interval", interval, "retention", e.executionRetention)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("execution gc shut down")
			return
		case <-ticker.C:
			e.gcExecutions(ctx)
		}
	}
}

func (e *Engine) gcExecutions(ctx context.Context) {
	ids, err := e.Workspaces.ListIDs(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "execution gc list workspaces failed", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-e.executionRetention)
	for _, workspaceID := range ids {
		n, err := e.Executions.DeleteOlderThan(ctx, workspaceID, cutoff, executionGCBatchLimit)
		if err != nil {
			e.logger.ErrorContext(ctx, "execution gc delete failed", "workspace_id", workspaceID, "error", err)
			continue
		}
		if n > 0 {
			e.logger.Info("execution gc deleted rows", "workspace_id", workspaceID, "count", n)
			metrics.ExecutionGCDeletedTotal.Add(float64(n))
		}
	}
}
