package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/repository"
	"github.com/cronbox/cronbox-core/internal/scheduler"
)

// WorkerHandler serves the external worker protocol (§6): a long-poll
// dequeue and a result report, both behind middleware.WorkerAuth.
type WorkerHandler struct {
	queue           repository.WorkerQueue
	engine          *scheduler.Engine
	longPollTimeout time.Duration
	logger          *slog.Logger
}

func NewWorkerHandler(queue repository.WorkerQueue, engine *scheduler.Engine, longPollTimeout time.Duration, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{
		queue:           queue,
		engine:          engine,
		longPollTimeout: longPollTimeout,
		logger:          logger.With("component", "worker_handler"),
	}
}

// GET /worker/poll
// Blocks up to longPollTimeout; 204 means "nothing to do, poll again".
func (h *WorkerHandler) Poll(c *gin.Context) {
	workerID := c.GetString("workerID")

	task, err := h.queue.Poll(c.Request.Context(), workerID, h.longPollTimeout)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "worker queue poll failed", "worker_id", workerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if task == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, task)
}

type reportResultRequest struct {
	TaskID       string         `json:"task_id"       binding:"required"`
	TaskType     string         `json:"task_type"      binding:"required,oneof=cron delayed"`
	WorkspaceID  string         `json:"workspace_id"   binding:"required"`
	RetryAttempt int            `json:"retry_attempt"`
	Result       probeResultDTO `json:"result"         binding:"required"`
}

// probeResultDTO mirrors domain.ProbeResult's public fields for JSON
// exchange with an external worker process, which never sees the domain
// package directly.
type probeResultDTO struct {
	Success    bool                `json:"success"`
	DurationMS int64               `json:"duration_ms"`
	Error      string              `json:"error"`
	ErrorKind  domain.ErrorKind    `json:"error_kind"`
	HTTP       *domain.HTTPProbeResult `json:"http,omitempty"`
}

func (d probeResultDTO) toDomain() domain.ProbeResult {
	return domain.ProbeResult{
		Success:    d.Success,
		DurationMS: d.DurationMS,
		Error:      d.Error,
		ErrorKind:  d.ErrorKind,
		HTTP:       d.HTTP,
	}
}

// POST /worker/report
// An external worker only ever reports HTTP probe outcomes — ICMP/TCP
// probes always run on the scheduler process itself (§6's worker protocol
// only hands out WorkerTaskInfo for http-protocol tasks).
func (h *WorkerHandler) Report(c *gin.Context) {
	var req reportResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := req.Result.toDomain()

	switch domain.TaskType(req.TaskType) {
	case domain.TaskTypeCron:
		h.engine.ReportExternalCronResult(c.Request.Context(), req.TaskID, req.WorkspaceID, req.RetryAttempt, result)
	case domain.TaskTypeDelayed:
		h.engine.ReportExternalDelayedResult(c.Request.Context(), req.TaskID, req.WorkspaceID, result)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported task_type"})
		return
	}

	c.Status(http.StatusAccepted)
}
