// Package scheduler implements C4 (the due-selection loops) and C5 (the
// executor pipeline): one ticker-per-concern loop exactly like the teacher's
// internal/scheduler.{Dispatcher,Worker,Reaper}, generalized from the
// teacher's single Schedule/Job pair to CronBox-core's five due-selecting
// entities (CronTask, DelayedTask, TaskChain, Heartbeat, ProcessMonitor).
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cronbox/cronbox-core/internal/chain"
	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/notify"
	"github.com/cronbox/cronbox-core/internal/probe"
	"github.com/cronbox/cronbox-core/internal/repository"
)

// Engine bundles every dependency the scheduler loops share: repositories,
// protocol probes, the overlap decision function, the chain interpreter,
// and the notification dispatcher. One Engine is constructed at startup and
// handed to each loop constructor in cmd/scheduler.
type Engine struct {
	logger *slog.Logger

	CronTasks      repository.CronTaskRepository
	DelayedTasks   repository.DelayedTaskRepository
	Chains         repository.TaskChainRepository
	ChainExecs     repository.ChainExecutionRepository
	Executions     repository.ExecutionRepository
	OverlapQueue   repository.OverlapQueueRepository
	Heartbeats     repository.HeartbeatRepository
	ProcessMons    repository.ProcessMonitorRepository
	NotifSettings  repository.NotificationSettingsRepository
	WorkerQueue    repository.WorkerQueue
	Workspaces     repository.WorkspaceRepository

	httpProbe *probe.HTTPProbe
	icmpProbe *probe.ICMPProbe
	tcpProbe  *probe.TCPProbe

	notifier *notify.Dispatcher
	pool     *pool

	cronNextFire            func(*domain.CronTask) time.Time
	chainNextFire           func(*domain.TaskChain) time.Time
	processMonitorNextFire  func(*domain.ProcessMonitor) time.Time

	executionRetention time.Duration
}

// Deps groups Engine's constructor arguments so cmd/scheduler doesn't have
// to maintain a 15-argument call.
type Deps struct {
	Logger *slog.Logger

	CronTasks     repository.CronTaskRepository
	DelayedTasks  repository.DelayedTaskRepository
	Chains        repository.TaskChainRepository
	ChainExecs    repository.ChainExecutionRepository
	Executions    repository.ExecutionRepository
	OverlapQueue  repository.OverlapQueueRepository
	Heartbeats    repository.HeartbeatRepository
	ProcessMons   repository.ProcessMonitorRepository
	NotifSettings repository.NotificationSettingsRepository
	WorkerQueue   repository.WorkerQueue
	Workspaces    repository.WorkspaceRepository

	HTTPProbe *probe.HTTPProbe
	ICMPProbe *probe.ICMPProbe
	TCPProbe  *probe.TCPProbe

	Notifier *notify.Dispatcher

	ExecutorPoolSize    int
	ExecutionRetention  time.Duration
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		logger: d.Logger.With("component", "scheduler_engine"),

		CronTasks:     d.CronTasks,
		DelayedTasks:  d.DelayedTasks,
		Chains:        d.Chains,
		ChainExecs:    d.ChainExecs,
		Executions:    d.Executions,
		OverlapQueue:  d.OverlapQueue,
		Heartbeats:    d.Heartbeats,
		ProcessMons:   d.ProcessMons,
		NotifSettings: d.NotifSettings,
		WorkerQueue:   d.WorkerQueue,
		Workspaces:    d.Workspaces,

		httpProbe: d.HTTPProbe,
		icmpProbe: d.ICMPProbe,
		tcpProbe:  d.TCPProbe,

		notifier: d.Notifier,
		pool:     newPool(d.ExecutorPoolSize),

		cronNextFire:           newCronTaskNextFire(d.Logger),
		chainNextFire:          newChainNextFire(d.Logger),
		processMonitorNextFire: newProcessMonitorNextExpectedStart(d.Logger),

		executionRetention: d.ExecutionRetention,
	}
}

// Wait blocks until every in-flight local probe execution has returned.
// Called during graceful shutdown after every loop's context is cancelled.
func (e *Engine) Wait() {
	e.pool.wait()
}

// runProbe dispatches to the protocol-specific executor, the one place that
// switches on domain.Protocol outside the probe package itself.
func (e *Engine) runProbe(ctx context.Context, protocol domain.Protocol, http *domain.HTTPParams, icmp *domain.ICMPParams, tcp *domain.TCPParams, timeout time.Duration) domain.ProbeResult {
	switch protocol {
	case domain.ProtocolHTTP:
		return e.httpProbe.Run(ctx, http, timeout)
	case domain.ProtocolICMP:
		return e.icmpProbe.Run(ctx, icmp, timeout)
	case domain.ProtocolTCP:
		return e.tcpProbe.Run(ctx, tcp, timeout)
	default:
		return domain.ProbeResult{
			Success:   false,
			Error:     "unknown protocol",
			ErrorKind: domain.ErrorKindUnknown,
		}
	}
}

// notifyEvent is a thin wrapper that looks up a workspace's settings before
// handing off to the dispatcher, logging (never propagating) a settings
// lookup failure — a missing notification_settings row must never fail the
// run it's reporting on.
func (e *Engine) notifyEvent(ctx context.Context, ev notify.Event) {
	settings, err := e.NotifSettings.GetByWorkspaceID(ctx, ev.WorkspaceID)
	if err != nil {
		e.logger.ErrorContext(ctx, "notification settings lookup failed", "workspace_id", ev.WorkspaceID, "error", err)
		return
	}
	e.notifier.Dispatch(ctx, settings, ev)
}

// chainStepRunner adapts the engine's HTTP probe into the chain
// interpreter's StepRunner contract (§4.6). Only HTTP is meaningful inside a
// chain step — ICMP/TCP probes belong to CronTask/DelayedTask, not chain
// steps, so no protocol switch is needed here.
func (e *Engine) chainStepRunner(ctx context.Context, req chain.StepRequest, timeout time.Duration) chain.StepResponse {
	result := e.httpProbe.Run(ctx, &domain.HTTPParams{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Body:    req.Body,
	}, timeout)

	if !result.Success && result.HTTP == nil {
		return chain.StepResponse{Err: errFromProbe(result), ErrKind: result.ErrorKind}
	}

	statusCode := 0
	var body []byte
	if result.HTTP != nil {
		statusCode = result.HTTP.StatusCode
		body = result.HTTP.Body
	}
	if !result.Success {
		return chain.StepResponse{
			StatusCode: statusCode,
			Body:       body,
			Err:        errFromProbe(result),
			ErrKind:    result.ErrorKind,
		}
	}
	return chain.StepResponse{StatusCode: statusCode, Body: body}
}

func errFromProbe(r domain.ProbeResult) error {
	if r.Error == "" {
		return nil
	}
	return probeError(r.Error)
}

// probeError is a minimal error wrapper so chainStepRunner doesn't need to
// import "errors" just to turn a string back into an error.
type probeError string

func (e probeError) Error() string { return string(e) }
