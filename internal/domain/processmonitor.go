package domain

import (
	"errors"
	"time"
)

var (
	ErrProcessMonitorNotFound  = errors.New("process monitor not found")
	ErrProcessMonitorPaused    = errors.New("process monitor is paused")
	ErrProcessMonitorConflict  = errors.New("process monitor is already running")
	ErrProcessMonitorNotRunning = errors.New("process monitor is not running")
)

type MonitorScheduleType string

const (
	MonitorScheduleCron      MonitorScheduleType = "cron"
	MonitorScheduleInterval  MonitorScheduleType = "interval"
	MonitorScheduleExactTime MonitorScheduleType = "exact_time"
)

type ConcurrencyPolicy string

const (
	ConcurrencySkip    ConcurrencyPolicy = "skip"
	ConcurrencyReplace ConcurrencyPolicy = "replace"
)

type ProcessMonitorStatus string

const (
	ProcessWaitingStart ProcessMonitorStatus = "waiting_start"
	ProcessRunning      ProcessMonitorStatus = "running"
	ProcessMissedStart  ProcessMonitorStatus = "missed_start"
	ProcessMissedEnd    ProcessMonitorStatus = "missed_end"
	ProcessPaused       ProcessMonitorStatus = "paused"
)

// ProcessMonitor pairs a start-ping and an end-ping with schedule-derived
// deadlines and a SKIP/REPLACE concurrency policy for overlapping runs (C8).
type ProcessMonitor struct {
	ID          string
	WorkspaceID string
	Name        string

	ScheduleType MonitorScheduleType
	CronExpr     string        // ScheduleType == cron
	Interval     time.Duration // ScheduleType == interval
	ExactTime    string        // "HH:MM", ScheduleType == exact_time
	Timezone     string

	StartGracePeriodSeconds int
	EndTimeoutSeconds       int
	StartToken              string
	EndToken                string

	ConcurrencyPolicy ConcurrencyPolicy

	NotifyOnMissedStart bool
	NotifyOnMissedEnd   bool
	NotifyOnRecovery    bool
	NotifyOnSuccess     bool

	Status        ProcessMonitorStatus
	CurrentRunID  *string
	LastStartAt   *time.Time
	NextExpectedStart *time.Time
	StartDeadline *time.Time
	EndDeadline   *time.Time

	SuccessCount int
	FailureCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WasFailed reports whether the monitor's status indicates the previous run
// (or the last expected one) was a miss, used to gate recovery notifications.
func (m *ProcessMonitor) WasFailed() bool {
	return m.Status == ProcessMissedStart || m.Status == ProcessMissedEnd
}

type ProcessEventType string

const (
	ProcessEventStart   ProcessEventType = "start"
	ProcessEventEnd     ProcessEventType = "end"
	ProcessEventMissed  ProcessEventType = "missed"
	ProcessEventTimeout ProcessEventType = "timeout"
)

// ProcessMonitorEvent is an append-only log entry; only the most recent 100
// per monitor are retained (§4.8).
type ProcessMonitorEvent struct {
	ID          string
	MonitorID   string
	RunID       string
	EventType   ProcessEventType
	Payload     map[string]any
	SourceIP    string
	OccurredAt  time.Time
}
