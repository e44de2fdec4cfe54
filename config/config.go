package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/cronbox/cronbox-core/internal/ssrf"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	ResendAPIKey string `env:"RESEND_API_KEY"         validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"            validate:"required_if=Env production,required_if=Env staging"`

	// RedisURL backs the external-worker long-poll dispatch queue (§6).
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0" validate:"required"`

	// WorkerAuthSecret HS256-signs/verifies the external worker's long-poll
	// bearer token. Single shared secret per deployment — the protocol has no
	// per-worker JWKS rotation.
	WorkerAuthSecret string `env:"WORKER_AUTH_SECRET,required" validate:"required"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	// Scheduler loop periods (§4.4).
	CronPollIntervalSec             int `env:"SCHEDULER_CRON_POLL_INTERVAL_SEC" envDefault:"2" validate:"min=1,max=60"`
	DelayedPollIntervalSec          int `env:"SCHEDULER_DELAYED_POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	ChainPollIntervalSec            int `env:"SCHEDULER_CHAIN_POLL_INTERVAL_SEC" envDefault:"5" validate:"min=1,max=60"`
	HeartbeatSweepIntervalSec       int `env:"SCHEDULER_HEARTBEAT_SWEEP_INTERVAL_SEC" envDefault:"30" validate:"min=1,max=300"`
	ProcessMonitorSweepIntervalSec  int `env:"SCHEDULER_PROCESS_MONITOR_SWEEP_INTERVAL_SEC" envDefault:"30" validate:"min=1,max=300"`
	NextRunRecomputeIntervalSec     int `env:"SCHEDULER_NEXT_RUN_RECOMPUTE_INTERVAL_SEC" envDefault:"60" validate:"min=1,max=3600"`
	QueueDrainIntervalSec           int `env:"SCHEDULER_QUEUE_DRAIN_INTERVAL_SEC" envDefault:"10" validate:"min=1,max=300"`
	StaleInstanceCleanupIntervalSec int `env:"SCHEDULER_STALE_INSTANCE_CLEANUP_INTERVAL_SEC" envDefault:"300" validate:"min=1,max=3600"`
	ExecutionGCIntervalSec          int `env:"SCHEDULER_EXECUTION_GC_INTERVAL_SEC" envDefault:"3600" validate:"min=60,max=86400"`

	// ExecutorPoolSize bounds local (non-external-worker) concurrent probe
	// execution across all of CronPoll/DelayedPoll/ChainPoll.
	ExecutorPoolSize int `env:"EXECUTOR_POOL_SIZE" envDefault:"20" validate:"min=1,max=500"`

	// Probe limits (§4.1).
	ProbeHTTPMaxResponseBytes int64    `env:"PROBE_HTTP_MAX_RESPONSE_BYTES" envDefault:"1048576" validate:"min=1"`
	ProbeICMPMaxCount         int      `env:"PROBE_ICMP_MAX_COUNT" envDefault:"10" validate:"min=1,max=10"`
	SSRFBlockedCIDRs          []string `env:"SSRF_BLOCKED_CIDRS" envSeparator:","`

	// ExecutionRetentionDefaultDays is the retention window ExecutionGC
	// applies per workspace (§4.2). A per-workspace plan override is an
	// external collaborator out of scope here.
	ExecutionRetentionDefaultDays int `env:"EXECUTION_RETENTION_DEFAULT_DAYS" envDefault:"30" validate:"min=1"`

	// NotificationWebhookTimeoutSec bounds one outbound webhook POST (C9).
	NotificationWebhookTimeoutSec int `env:"NOTIFICATION_WEBHOOK_TIMEOUT_SEC" envDefault:"30" validate:"min=1,max=120"`

	// WorkerLongPollTimeoutSec bounds one external-worker BRPOP wait (§6).
	WorkerLongPollTimeoutSec int `env:"WORKER_LONG_POLL_TIMEOUT_SEC" envDefault:"25" validate:"min=1,max=60"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if len(cfg.SSRFBlockedCIDRs) == 0 {
		cfg.SSRFBlockedCIDRs = ssrf.DefaultBlockedCIDRs()
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
