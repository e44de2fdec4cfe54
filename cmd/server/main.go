package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cronbox/cronbox-core/config"
	"github.com/cronbox/cronbox-core/internal/email"
	"github.com/cronbox/cronbox-core/internal/health"
	"github.com/cronbox/cronbox-core/internal/infrastructure/postgres"
	redisinfra "github.com/cronbox/cronbox-core/internal/infrastructure/redis"
	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/notify"
	"github.com/cronbox/cronbox-core/internal/probe"
	"github.com/cronbox/cronbox-core/internal/scheduler"
	"github.com/cronbox/cronbox-core/internal/ssrf"
	httptransport "github.com/cronbox/cronbox-core/internal/transport/http"
	"github.com/cronbox/cronbox-core/internal/transport/http/handler"
)

// cmd/server serves the two public/worker-facing HTTP surfaces (§6): ping
// ingest for Heartbeat/ProcessMonitor, and the external worker's long-poll
// dequeue + result report. cmd/scheduler owns every ticker-driven loop; the
// two processes share the same Postgres/Redis state and scale independently.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	heartbeats := postgres.NewHeartbeatRepository(pool, logger)
	processMons := postgres.NewProcessMonitorRepository(pool, logger)
	notifSettings := postgres.NewNotificationSettingsRepository(pool, logger)
	workerQueue := redisinfra.NewWorkerQueue(redisClient)

	ssrfChecker := ssrf.New(cfg.SSRFBlockedCIDRs)
	httpProbe := probe.NewHTTPProbe(ssrfChecker, cfg.ProbeHTTPMaxResponseBytes, logger)

	// The engine backing this process never runs the due-selection loops —
	// only the subset of methods ping ingest and worker report need
	// (RecordHeartbeatPing, HandleProcessMonitor{Start,End}Ping,
	// ReportExternal{Cron,Delayed}Result), so ExecutorPoolSize is tiny: no
	// local probe ever actually goes through this process's pool.
	engine := scheduler.NewEngine(scheduler.Deps{
		Logger: logger,

		CronTasks:     postgres.NewCronTaskRepository(pool, logger),
		DelayedTasks:  postgres.NewDelayedTaskRepository(pool, logger),
		Chains:        postgres.NewTaskChainRepository(pool, logger),
		ChainExecs:    postgres.NewChainExecutionRepository(pool, logger),
		Executions:    postgres.NewExecutionRepository(pool, logger),
		OverlapQueue:  postgres.NewOverlapQueueRepository(pool, logger),
		Heartbeats:    heartbeats,
		ProcessMons:   processMons,
		NotifSettings: notifSettings,
		WorkerQueue:   workerQueue,
		Workspaces:    postgres.NewWorkspaceRepository(pool, logger),

		HTTPProbe: httpProbe,
		ICMPProbe: probe.NewICMPProbe(),
		TCPProbe:  probe.NewTCPProbe(),

		Notifier: buildNotifier(cfg, logger),

		ExecutorPoolSize:   1,
		ExecutionRetention: time.Duration(cfg.ExecutionRetentionDefaultDays) * 24 * time.Hour,
	})

	pingHandler := handler.NewPingHandler(heartbeats, processMons, engine, logger)
	workerHandler := handler.NewWorkerHandler(workerQueue, engine, time.Duration(cfg.WorkerLongPollTimeoutSec)*time.Second, logger)

	router := httptransport.NewRouter(logger, pingHandler, workerHandler, []byte(cfg.WorkerAuthSecret))
	router.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// buildNotifier wires every channel whose credentials are configured; kept
// identical to cmd/scheduler's copy since ping-ingest raises the same
// recovery/missed/success events the due-selection loops do.
func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	var channels []notify.Channel

	emailSender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	channels = append(channels, notify.NewEmailChannel(emailSender))

	channels = append(channels, notify.NewWebhookChannel(time.Duration(cfg.NotificationWebhookTimeoutSec)*time.Second))

	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Error("telegram bot init failed, telegram channel disabled", "error", err)
		} else {
			channels = append(channels, notify.NewTelegramChannel(bot))
		}
	}

	return notify.NewDispatcher(logger, channels...)
}
