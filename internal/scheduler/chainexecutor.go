package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/chain"
	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/notify"
)

// executeChain drives the C6 interpreter for one claimed TaskChain and
// persists a ChainExecution with one StepExecution per ran/skipped step.
func (e *Engine) executeChain(ctx context.Context, c *domain.TaskChain) {
	metrics.ExecutionsInFlight.Inc()
	defer metrics.ExecutionsInFlight.Dec()

	chainExec, err := e.ChainExecs.Start(ctx, &domain.ChainExecution{
		WorkspaceID: c.WorkspaceID, ChainID: c.ID, StartedAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "start chain execution record failed", "chain_id", c.ID, "error", err)
	}

	execCtx := chain.NewExecutionContext(nil)
	results, status := chain.Run(ctx, c, execCtx, e.chainStepRunner)

	if chainExec != nil {
		for _, r := range results {
			e.persistStepExecution(ctx, chainExec.ID, r)
		}
		if err := e.ChainExecs.Finish(ctx, chainExec.ID, status, execCtx.Error); err != nil {
			e.logger.ErrorContext(ctx, "finish chain execution record failed", "chain_id", c.ID, "error", err)
		}
	}

	e.releaseChain(ctx, c)
	e.notifyChainStatus(ctx, c, status, execCtx.Error)
	metrics.ExecutionsCompletedTotal.WithLabelValues("chain", string(status)).Inc()
}

func (e *Engine) notifyChainStatus(ctx context.Context, c *domain.TaskChain, status domain.ChainStatus, errMsg string) {
	now := time.Now().UTC()
	switch status {
	case domain.ChainStatusSuccess:
		if c.NotifyOnSuccess {
			e.notifyEvent(ctx, notify.Event{
				Type: notify.EventSuccess, WorkspaceID: c.WorkspaceID, EntityKind: "chain",
				EntityID: c.ID, EntityName: c.Name, OccurredAt: now,
			})
		}
	case domain.ChainStatusPartial:
		if c.NotifyOnPartial {
			e.notifyEvent(ctx, notify.Event{
				Type: notify.EventFailure, WorkspaceID: c.WorkspaceID, EntityKind: "chain",
				EntityID: c.ID, EntityName: c.Name, OccurredAt: now,
				Data: map[string]any{"status": "partial", "error": errMsg},
			})
		}
	case domain.ChainStatusFailed:
		if c.NotifyOnFailure {
			e.notifyEvent(ctx, notify.Event{
				Type: notify.EventFailure, WorkspaceID: c.WorkspaceID, EntityKind: "chain",
				EntityID: c.ID, EntityName: c.Name, OccurredAt: now,
				Data: map[string]any{"status": "failed", "error": errMsg},
			})
		}
	}
}

func (e *Engine) persistStepExecution(ctx context.Context, chainExecID string, r chain.StepResult) {
	step := &domain.StepExecution{
		ChainExecutionID: chainExecID,
		StepID:           r.Step.ID,
		StepOrder:        r.Step.StepOrder,
		Outcome:          r.Outcome,
		StartedAt:        time.Now().UTC(),
		StatusCode:       r.StatusCode,
		ResponseBody:     r.Body,
		ExtractedVars:    r.ExtractedVars,
		ConditionDetails: r.ConditionDetails,
		Error:            r.Error,
		ErrorKind:        r.ErrorKind,
	}
	started, err := e.ChainExecs.StartStep(ctx, step)
	if err != nil {
		e.logger.ErrorContext(ctx, "start step execution record failed", "chain_execution_id", chainExecID, "error", err)
		return
	}
	now := time.Now().UTC()
	started.FinishedAt = &now
	if err := e.ChainExecs.FinishStep(ctx, started); err != nil {
		e.logger.ErrorContext(ctx, "finish step execution record failed", "step_execution_id", started.ID, "error", err)
	}
	metrics.ChainStepsCompletedTotal.WithLabelValues(string(r.Outcome)).Inc()
}

func (e *Engine) releaseChain(ctx context.Context, c *domain.TaskChain) {
	if err := e.Chains.SetRunningInstances(ctx, c.ID, -1); err != nil {
		e.logger.ErrorContext(ctx, "release chain running instances failed", "chain_id", c.ID, "error", err)
		return
	}
	e.drainOneChain(ctx, c.ID, c.WorkspaceID)
}

func (e *Engine) drainOneChain(ctx context.Context, chainID, workspaceID string) {
	entry, err := e.OverlapQueue.PopOldest(ctx, domain.TaskTypeChain, chainID)
	if err != nil {
		e.logger.ErrorContext(ctx, "pop overlap queue entry failed", "chain_id", chainID, "error", err)
		return
	}
	if entry == nil {
		return
	}
	c, err := e.Chains.GetByID(ctx, chainID, workspaceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "refetch chain for queue drain failed", "chain_id", chainID, "error", err)
		return
	}
	if err := e.Chains.SetRunningInstances(ctx, c.ID, 1); err != nil {
		e.logger.ErrorContext(ctx, "increment running instances for queue drain failed", "chain_id", c.ID, "error", err)
		return
	}
	e.pool.submit(func() {
		e.executeChain(context.Background(), c)
	})
}
