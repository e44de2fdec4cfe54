package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/cronbox/cronbox-core/internal/transport/http/handler"
	"github.com/cronbox/cronbox-core/internal/transport/http/middleware"
)

// NewRouter wires the public ping-ingest routes and the worker-auth-gated
// external worker protocol routes (§6). There is no per-user auth surface —
// CronBox-core's tenant-facing CRUD API is a separate concern from this
// probe-execution plane.
func NewRouter(logger *slog.Logger, pingHandler *handler.PingHandler, workerHandler *handler.WorkerHandler, workerAuthSecret []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	ping := r.Group("/ping")
	ping.GET("/heartbeat/:token", pingHandler.Heartbeat)
	ping.POST("/heartbeat/:token", pingHandler.Heartbeat)
	ping.GET("/process/start/:token", pingHandler.ProcessStart)
	ping.POST("/process/start/:token", pingHandler.ProcessStart)
	ping.GET("/process/end/:token", pingHandler.ProcessEnd)
	ping.POST("/process/end/:token", pingHandler.ProcessEnd)

	worker := r.Group("/worker", middleware.WorkerAuth(workerAuthSecret))
	worker.GET("/poll", workerHandler.Poll)
	worker.POST("/report", workerHandler.Report)

	return r
}
