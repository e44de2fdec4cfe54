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
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cronbox/cronbox-core/config"
	"github.com/cronbox/cronbox-core/internal/email"
	"github.com/cronbox/cronbox-core/internal/health"
	"github.com/cronbox/cronbox-core/internal/infrastructure/postgres"
	redisinfra "github.com/cronbox/cronbox-core/internal/infrastructure/redis"
	ctxlog "github.com/cronbox/cronbox-core/internal/log"
	"github.com/cronbox/cronbox-core/internal/metrics"
	"github.com/cronbox/cronbox-core/internal/notify"
	"github.com/cronbox/cronbox-core/internal/probe"
	"github.com/cronbox/cronbox-core/internal/scheduler"
	"github.com/cronbox/cronbox-core/internal/ssrf"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	cronTasks := postgres.NewCronTaskRepository(pool, logger)
	delayedTasks := postgres.NewDelayedTaskRepository(pool, logger)
	chains := postgres.NewTaskChainRepository(pool, logger)
	chainExecs := postgres.NewChainExecutionRepository(pool, logger)
	executions := postgres.NewExecutionRepository(pool, logger)
	overlapQueue := postgres.NewOverlapQueueRepository(pool, logger)
	heartbeats := postgres.NewHeartbeatRepository(pool, logger)
	processMons := postgres.NewProcessMonitorRepository(pool, logger)
	notifSettings := postgres.NewNotificationSettingsRepository(pool, logger)
	workspaces := postgres.NewWorkspaceRepository(pool, logger)
	workerQueue := redisinfra.NewWorkerQueue(redisClient)

	ssrfChecker := ssrf.New(cfg.SSRFBlockedCIDRs)
	httpProbe := probe.NewHTTPProbe(ssrfChecker, cfg.ProbeHTTPMaxResponseBytes, logger)
	icmpProbe := probe.NewICMPProbe()
	tcpProbe := probe.NewTCPProbe()

	notifier := buildNotifier(cfg, logger)

	engine := scheduler.NewEngine(scheduler.Deps{
		Logger: logger,

		CronTasks:     cronTasks,
		DelayedTasks:  delayedTasks,
		Chains:        chains,
		ChainExecs:    chainExecs,
		Executions:    executions,
		OverlapQueue:  overlapQueue,
		Heartbeats:    heartbeats,
		ProcessMons:   processMons,
		NotifSettings: notifSettings,
		WorkerQueue:   workerQueue,
		Workspaces:    workspaces,

		HTTPProbe: httpProbe,
		ICMPProbe: icmpProbe,
		TCPProbe:  tcpProbe,

		Notifier: notifier,

		ExecutorPoolSize:   cfg.ExecutorPoolSize,
		ExecutionRetention: time.Duration(cfg.ExecutionRetentionDefaultDays) * 24 * time.Hour,
	})

	go engine.RunCronPoll(ctx, time.Duration(cfg.CronPollIntervalSec)*time.Second)
	go engine.RunDelayedPoll(ctx, time.Duration(cfg.DelayedPollIntervalSec)*time.Second)
	go engine.RunChainPoll(ctx, time.Duration(cfg.ChainPollIntervalSec)*time.Second)
	go engine.RunHeartbeatSweep(ctx, time.Duration(cfg.HeartbeatSweepIntervalSec)*time.Second)
	go engine.RunProcessMonitorSweep(ctx, time.Duration(cfg.ProcessMonitorSweepIntervalSec)*time.Second)
	go engine.RunNextRunRecompute(ctx, time.Duration(cfg.NextRunRecomputeIntervalSec)*time.Second)
	go engine.RunQueueDrain(ctx, time.Duration(cfg.QueueDrainIntervalSec)*time.Second)
	go engine.RunStaleInstanceCleanup(ctx, time.Duration(cfg.StaleInstanceCleanupIntervalSec)*time.Second)
	go engine.RunExecutionGC(ctx, time.Duration(cfg.ExecutionGCIntervalSec)*time.Second)

	metrics.SchedulerStartTime.Set(float64(time.Now().Unix()))

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	readinessSrv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := checker.Readiness(r.Context())
			if result.Status != "up" {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}),
	}
	go func() {
		if err := readinessSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("readiness server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	engine.Wait()
	metrics.SchedulerShutdownsTotal.Inc()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := readinessSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("readiness server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

// buildNotifier wires every channel whose credentials are configured;
// Telegram is skipped entirely when no bot token is set rather than
// registered in a broken state.
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

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
