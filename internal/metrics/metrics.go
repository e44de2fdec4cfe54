package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Executor metrics (C5/C6)

	ExecutionPickupLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cronbox",
		Name:      "execution_pickup_latency_seconds",
		Help:      "Time from an entity's next_run_at to the scheduler claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"task_type"})

	ProbeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cronbox",
		Name:      "probe_duration_seconds",
		Help:      "Duration of one protocol probe.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"protocol", "outcome"})

	ExecutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cronbox",
		Name:      "executions_in_flight",
		Help:      "Number of executions currently running across the local pool.",
	})

	ExecutionsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "executions_completed_total",
		Help:      "Total probe executions finished, by task type and outcome.",
	}, []string{"task_type", "outcome"})

	ChainStepsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "chain_steps_completed_total",
		Help:      "Total chain steps finished, by outcome.",
	}, []string{"outcome"})

	OverlapDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "overlap_decisions_total",
		Help:      "Total overlap controller decisions, by task type and action.",
	}, []string{"task_type", "action"})

	// Monitoring metrics (C7/C8)

	HeartbeatTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "heartbeat_transitions_total",
		Help:      "Total heartbeat status transitions, by new status.",
	}, []string{"status"})

	ProcessMonitorMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "process_monitor_misses_total",
		Help:      "Total process monitor deadline misses, by kind.",
	}, []string{"kind"})

	// Notification metrics (C9)

	NotificationsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "notifications_sent_total",
		Help:      "Total notifications dispatched, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// Stale cleanup / GC metrics

	StaleInstancesResetTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "stale_instances_reset_total",
		Help:      "Total running_instances counters reset by the stale cleanup sweep.",
	}, []string{"task_type"})

	ExecutionGCDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "execution_gc_deleted_total",
		Help:      "Total Execution rows deleted by the retention sweep.",
	})

	// Process lifecycle

	SchedulerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cronbox",
		Name:      "scheduler_start_time_seconds",
		Help:      "Unix timestamp when the scheduler process started.",
	})

	SchedulerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "scheduler_shutdowns_total",
		Help:      "Number of times the scheduler process has shut down.",
	})

	// HTTP metrics (cmd/server)

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cronbox",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronbox",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ExecutionPickupLatency,
		ProbeDuration,
		ExecutionsInFlight,
		ExecutionsCompletedTotal,
		ChainStepsCompletedTotal,
		OverlapDecisionsTotal,
		HeartbeatTransitionsTotal,
		ProcessMonitorMissesTotal,
		NotificationsSentTotal,
		StaleInstancesResetTotal,
		ExecutionGCDeletedTotal,
		SchedulerStartTime,
		SchedulerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
