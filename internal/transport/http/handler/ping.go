package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/repository"
	"github.com/cronbox/cronbox-core/internal/scheduler"
)

// PingHandler serves the public, unauthenticated ping-ingest routes: a
// heartbeat's or process monitor's opaque token in the URL is its own
// credential, exactly the way the source's liveness-check endpoints work.
type PingHandler struct {
	heartbeats  repository.HeartbeatRepository
	processMons repository.ProcessMonitorRepository
	engine      *scheduler.Engine
	logger      *slog.Logger
}

func NewPingHandler(heartbeats repository.HeartbeatRepository, processMons repository.ProcessMonitorRepository, engine *scheduler.Engine, logger *slog.Logger) *PingHandler {
	return &PingHandler{
		heartbeats:  heartbeats,
		processMons: processMons,
		engine:      engine,
		logger:      logger.With("component", "ping_handler"),
	}
}

// GET/POST /ping/heartbeat/:token
func (h *PingHandler) Heartbeat(c *gin.Context) {
	token := c.Param("token")

	hb, err := h.heartbeats.GetByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrHeartbeatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errHeartbeatNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "heartbeat ping lookup", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if hb.Status == domain.HeartbeatPaused {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": errHeartbeatPaused})
		return
	}

	h.engine.RecordHeartbeatPing(c.Request.Context(), hb, clientIP(c))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET/POST /ping/process/start/:token
func (h *PingHandler) ProcessStart(c *gin.Context) {
	mon, err := h.processMons.GetByStartToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, domain.ErrProcessMonitorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errProcessMonitorNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "process monitor start lookup", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if mon.Status == domain.ProcessPaused {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": errProcessMonitorPaused})
		return
	}

	updated, runID, err := h.engine.HandleProcessMonitorStartPing(c.Request.Context(), mon.ID)
	if err != nil {
		if errors.Is(err, domain.ErrProcessMonitorConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": errProcessMonitorConflict})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "process monitor start ping", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "run_id": runID, "monitor_status": updated.Status})
}

// GET/POST /ping/process/end/:token
func (h *PingHandler) ProcessEnd(c *gin.Context) {
	mon, err := h.processMons.GetByEndToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, domain.ErrProcessMonitorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errProcessMonitorNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "process monitor end lookup", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if mon.Status == domain.ProcessPaused {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": errProcessMonitorPaused})
		return
	}

	updated, err := h.engine.HandleProcessMonitorEndPing(c.Request.Context(), mon.ID)
	if err != nil {
		if errors.Is(err, domain.ErrProcessMonitorNotRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": errProcessMonitorNotRunning})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "process monitor end ping", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "monitor_status": updated.Status})
}

// clientIP prefers a trusted proxy header, falling back to gin's own
// RemoteAddr-derived resolution (SetTrustedProxies governs which headers
// gin itself honors).
func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return c.Request.RemoteAddr
}
