package scheduler

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/notify"
	"github.com/cronbox/cronbox-core/internal/overlap"
	"github.com/cronbox/cronbox-core/internal/repository"
)

// This file implements C5: the ten-step pipeline a claimed CronTask or
// DelayedTask goes through once C3 has decided it may run. fetch -> (for
// delayed, transition to running happens inside ClaimDue itself) -> create
// Execution -> run the probe -> finish Execution -> recompute/retry ->
// release the overlap slot -> notify -> optionally re-enqueue a retry.

// submitCronTaskRun routes one allowed firing to either the local pool or
// an external worker's long-poll queue, mirroring the teacher's single
// in-process Worker generalized with a remote dispatch target (§4.4).
func (e *Engine) submitCronTaskRun(t *domain.CronTask, retryAttempt int) {
	if t.WorkerID != nil && t.Protocol == domain.ProtocolHTTP {
		e.dispatchCronTaskExternal(*t.WorkerID, t, retryAttempt)
		return
	}
	e.pool.submit(func() {
		e.executeCronTask(context.Background(), t, retryAttempt)
	})
}

func (e *Engine) dispatchCronTaskExternal(workerID string, t *domain.CronTask, retryAttempt int) {
	ctx := context.Background()
	err := e.WorkerQueue.Push(ctx, workerID, repository.WorkerTaskInfo{
		TaskID: t.ID, TaskType: string(domain.TaskTypeCron),
		URL: t.HTTP.URL, Method: t.HTTP.Method, Headers: t.HTTP.Headers, Body: t.HTTP.Body,
		TimeoutSeconds: t.TimeoutSeconds, RetryCount: t.RetryCount, RetryDelaySeconds: t.RetryDelaySeconds,
		WorkspaceID: t.WorkspaceID, TaskName: t.Name,
	})
	if err != nil {
		e.logger.Error("push cron task to external worker queue failed",
			"cron_task_id", t.ID, "worker_id", workerID, "retry_attempt", retryAttempt, "error", err)
	}
}

// executeCronTask runs the probe locally. ReportExternalCronResult is the
// equivalent entry point for a result reported back by an external worker
// (wired from the worker-report HTTP handler).
func (e *Engine) executeCronTask(ctx context.Context, t *domain.CronTask, retryAttempt int) {
	metrics.ExecutionsInFlight.Inc()
	defer metrics.ExecutionsInFlight.Dec()

	timeout := time.Duration(t.TimeoutSeconds) * time.Second
	result := e.runProbe(ctx, t.Protocol, t.HTTP, t.ICMP, t.TCP, timeout)
	e.finishCronTaskRun(ctx, t, retryAttempt, result)
}

// ReportExternalCronResult applies a result an external worker reported back
// for a task it long-polled, refetching current state since the row may
// have changed since dispatch.
func (e *Engine) ReportExternalCronResult(ctx context.Context, taskID, workspaceID string, retryAttempt int, result domain.ProbeResult) {
	t, err := e.CronTasks.GetByID(ctx, taskID, workspaceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "refetch cron task for external report failed", "cron_task_id", taskID, "error", err)
		return
	}
	e.finishCronTaskRun(ctx, t, retryAttempt, result)
}

func (e *Engine) finishCronTaskRun(ctx context.Context, t *domain.CronTask, retryAttempt int, result domain.ProbeResult) {
	exec, err := e.Executions.Start(ctx, &domain.Execution{
		WorkspaceID: t.WorkspaceID, TaskType: domain.TaskTypeCron, TaskID: t.ID,
		RetryAttempt: retryAttempt, StartedAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "start execution record failed", "cron_task_id", t.ID, "error", err)
	} else {
		e.finishExecution(ctx, exec, result)
	}
	recordProbeMetrics(domain.TaskTypeCron, t.Protocol, result)

	wasFailed := t.LastStatus == "failed"
	now := time.Now().UTC()
	if err := e.CronTasks.UpdateAfterRun(ctx, t.ID, result.Success, now); err != nil {
		e.logger.ErrorContext(ctx, "update cron task after run failed", "cron_task_id", t.ID, "error", err)
	}

	e.releaseCronTask(ctx, t)

	finalAttempt := retryAttempt >= t.RetryCount
	switch {
	case result.Success && wasFailed:
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventRecovery, WorkspaceID: t.WorkspaceID, EntityKind: "cron_task",
			EntityID: t.ID, EntityName: t.Name, OccurredAt: now,
			Data: map[string]any{"retry_attempt": retryAttempt},
		})
	case !result.Success && finalAttempt:
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventFailure, WorkspaceID: t.WorkspaceID, EntityKind: "cron_task",
			EntityID: t.ID, EntityName: t.Name, OccurredAt: now,
			Data: map[string]any{"error": result.Error, "error_kind": string(result.ErrorKind), "retry_attempt": retryAttempt},
		})
	}

	if !result.Success && !finalAttempt {
		e.scheduleCronTaskRetry(t, retryAttempt+1)
	}
}

// scheduleCronTaskRetry re-enters the overlap decision after
// retry_delay_seconds, exactly like DelayedTask.Requeue but for the
// recurring entity, which has no "pending retry" row of its own to defer
// through — the redecision has to be driven from memory by a timer instead
// of the next poll cycle.
func (e *Engine) scheduleCronTaskRetry(t *domain.CronTask, nextAttempt int) {
	delay := time.Duration(t.RetryDelaySeconds) * time.Second
	time.AfterFunc(delay, func() {
		ctx := context.Background()
		fresh, err := e.CronTasks.GetByID(ctx, t.ID, t.WorkspaceID)
		if err != nil {
			e.logger.ErrorContext(ctx, "refetch cron task for retry failed", "cron_task_id", t.ID, "error", err)
			return
		}
		queueDepth, err := e.OverlapQueue.Depth(ctx, domain.TaskTypeCron, fresh.ID)
		if err != nil {
			e.logger.ErrorContext(ctx, "overlap queue depth for retry failed", "cron_task_id", fresh.ID, "error", err)
			return
		}
		decision := overlap.Decide(fresh.OverlapPolicy, fresh.RunningInstances, fresh.MaxInstances, queueDepth, fresh.MaxQueueSize)
		if !decision.ShouldExecute() {
			e.logger.WarnContext(ctx, "cron task retry skipped", "cron_task_id", fresh.ID, "reason", decision.SkippedReason())
			return
		}
		if err := e.CronTasks.SetRunningInstances(ctx, fresh.ID, 1); err != nil {
			e.logger.ErrorContext(ctx, "increment running instances for cron retry failed", "cron_task_id", fresh.ID, "error", err)
			return
		}
		e.submitCronTaskRun(fresh, nextAttempt)
	})
}

func (e *Engine) releaseCronTask(ctx context.Context, t *domain.CronTask) {
	if err := e.CronTasks.SetRunningInstances(ctx, t.ID, -1); err != nil {
		e.logger.ErrorContext(ctx, "release cron task running instances failed", "cron_task_id", t.ID, "error", err)
		return
	}
	e.drainOneCronTask(ctx, t.ID, t.WorkspaceID)
}

// drainOneCronTask pops the oldest queued firing for one entity and submits
// it, used right after release() frees a slot and again by the QueueDrain
// loop as a backstop.
func (e *Engine) drainOneCronTask(ctx context.Context, taskID, workspaceID string) {
	entry, err := e.OverlapQueue.PopOldest(ctx, domain.TaskTypeCron, taskID)
	if err != nil {
		e.logger.ErrorContext(ctx, "pop overlap queue entry failed", "cron_task_id", taskID, "error", err)
		return
	}
	if entry == nil {
		return
	}
	t, err := e.CronTasks.GetByID(ctx, taskID, workspaceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "refetch cron task for queue drain failed", "cron_task_id", taskID, "error", err)
		return
	}
	if err := e.CronTasks.SetRunningInstances(ctx, t.ID, 1); err != nil {
		e.logger.ErrorContext(ctx, "increment running instances for queue drain failed", "cron_task_id", t.ID, "error", err)
		return
	}
	e.submitCronTaskRun(t, entry.RetryAttempt)
}

// ---- DelayedTask ----

func (e *Engine) submitDelayedTaskRun(t *domain.DelayedTask) {
	if t.WorkerID != nil && t.Protocol == domain.ProtocolHTTP {
		e.dispatchDelayedTaskExternal(*t.WorkerID, t)
		return
	}
	e.pool.submit(func() {
		e.executeDelayedTask(context.Background(), t)
	})
}

func (e *Engine) dispatchDelayedTaskExternal(workerID string, t *domain.DelayedTask) {
	ctx := context.Background()
	err := e.WorkerQueue.Push(ctx, workerID, repository.WorkerTaskInfo{
		TaskID: t.ID, TaskType: string(domain.TaskTypeDelayed),
		URL: t.HTTP.URL, Method: t.HTTP.Method, Headers: t.HTTP.Headers, Body: t.HTTP.Body,
		TimeoutSeconds: t.TimeoutSeconds, RetryCount: t.RetryCount, RetryDelaySeconds: t.RetryDelaySeconds,
		WorkspaceID: t.WorkspaceID, TaskName: t.Name,
	})
	if err != nil {
		e.logger.Error("push delayed task to external worker queue failed",
			"delayed_task_id", t.ID, "worker_id", workerID, "error", err)
	}
}

func (e *Engine) executeDelayedTask(ctx context.Context, t *domain.DelayedTask) {
	metrics.ExecutionsInFlight.Inc()
	defer metrics.ExecutionsInFlight.Dec()

	timeout := time.Duration(t.TimeoutSeconds) * time.Second
	result := e.runProbe(ctx, t.Protocol, t.HTTP, t.ICMP, t.TCP, timeout)
	e.finishDelayedTaskRun(ctx, t, result)
}

func (e *Engine) ReportExternalDelayedResult(ctx context.Context, taskID, workspaceID string, result domain.ProbeResult) {
	t, err := e.DelayedTasks.GetByID(ctx, taskID, workspaceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "refetch delayed task for external report failed", "delayed_task_id", taskID, "error", err)
		return
	}
	e.finishDelayedTaskRun(ctx, t, result)
}

func (e *Engine) finishDelayedTaskRun(ctx context.Context, t *domain.DelayedTask, result domain.ProbeResult) {
	exec, err := e.Executions.Start(ctx, &domain.Execution{
		WorkspaceID: t.WorkspaceID, TaskType: domain.TaskTypeDelayed, TaskID: t.ID,
		RetryAttempt: t.RetryAttempt, StartedAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "start execution record failed", "delayed_task_id", t.ID, "error", err)
	} else {
		e.finishExecution(ctx, exec, result)
	}
	recordProbeMetrics(domain.TaskTypeDelayed, t.Protocol, result)

	now := time.Now().UTC()
	finalAttempt := t.RetryAttempt >= t.RetryCount

	switch {
	case result.Success:
		if err := e.DelayedTasks.MarkSuccess(ctx, t.ID); err != nil {
			e.logger.ErrorContext(ctx, "mark delayed task success failed", "delayed_task_id", t.ID, "error", err)
		}
	case !finalAttempt:
		executeAt := now.Add(time.Duration(t.RetryDelaySeconds) * time.Second)
		if err := e.DelayedTasks.Requeue(ctx, t.ID, t.RetryAttempt+1, executeAt); err != nil {
			e.logger.ErrorContext(ctx, "requeue delayed task failed", "delayed_task_id", t.ID, "error", err)
		}
	default:
		if err := e.DelayedTasks.MarkFailed(ctx, t.ID, result.Error); err != nil {
			e.logger.ErrorContext(ctx, "mark delayed task failed failed", "delayed_task_id", t.ID, "error", err)
		}
	}

	e.releaseDelayedTask(ctx, t)

	if !result.Success && finalAttempt {
		e.notifyEvent(ctx, notify.Event{
			Type: notify.EventFailure, WorkspaceID: t.WorkspaceID, EntityKind: "delayed_task",
			EntityID: t.ID, EntityName: t.Name, OccurredAt: now,
			Data: map[string]any{"error": result.Error, "error_kind": string(result.ErrorKind), "retry_attempt": t.RetryAttempt},
		})
	}
}

func (e *Engine) releaseDelayedTask(ctx context.Context, t *domain.DelayedTask) {
	if err := e.DelayedTasks.SetRunningInstances(ctx, t.ID, -1); err != nil {
		e.logger.ErrorContext(ctx, "release delayed task running instances failed", "delayed_task_id", t.ID, "error", err)
		return
	}
	e.drainOneDelayedTask(ctx, t.ID, t.WorkspaceID)
}

func (e *Engine) drainOneDelayedTask(ctx context.Context, taskID, workspaceID string) {
	entry, err := e.OverlapQueue.PopOldest(ctx, domain.TaskTypeDelayed, taskID)
	if err != nil {
		e.logger.ErrorContext(ctx, "pop overlap queue entry failed", "delayed_task_id", taskID, "error", err)
		return
	}
	if entry == nil {
		return
	}
	t, err := e.DelayedTasks.GetByID(ctx, taskID, workspaceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "refetch delayed task for queue drain failed", "delayed_task_id", taskID, "error", err)
		return
	}
	if err := e.DelayedTasks.SetRunningInstances(ctx, t.ID, 1); err != nil {
		e.logger.ErrorContext(ctx, "increment running instances for queue drain failed", "delayed_task_id", t.ID, "error", err)
		return
	}
	e.submitDelayedTaskRun(t)
}

// recordProbeMetrics records the two executor-facing Prometheus series that
// need an outcome label, kept as one helper since CronTask and DelayedTask
// both report the same shape after running a probe.
func recordProbeMetrics(taskType domain.TaskType, protocol domain.Protocol, result domain.ProbeResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.ExecutionsCompletedTotal.WithLabelValues(string(taskType), outcome).Inc()
	metrics.ProbeDuration.WithLabelValues(string(protocol), outcome).Observe(float64(result.DurationMS) / 1000)
}

// finishExecution persists the probe outcome onto an already-started
// Execution row.
func (e *Engine) finishExecution(ctx context.Context, exec *domain.Execution, result domain.ProbeResult) {
	now := time.Now().UTC()
	durationMS := result.DurationMS
	exec.FinishedAt = &now
	exec.DurationMS = &durationMS
	exec.HTTPResult = result.HTTP
	exec.ICMPResult = result.ICMP
	exec.TCPResult = result.TCP

	if result.Success {
		exec.Status = domain.ExecutionSuccess
	} else {
		exec.Status = domain.ExecutionFailed
		exec.Error = result.Error
		exec.ErrorKind = result.ErrorKind
	}

	if err := e.Executions.Finish(ctx, exec); err != nil {
		e.logger.ErrorContext(ctx, "finish execution record failed", "execution_id", exec.ID, "error", err)
	}
}
