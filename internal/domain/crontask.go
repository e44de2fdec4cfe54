package domain

import (
	"errors"
	"time"
)

var (
	ErrCronTaskNotFound  = errors.New("cron task not found")
	ErrInvalidCronExpr   = errors.New("invalid cron expression")
	ErrInvalidTimezone   = errors.New("invalid IANA timezone")
)

// CronTask is a repeating action fired by cron expression on its own
// timezone. Mirrors the teacher's Schedule, generalized across protocols and
// tenants.
type CronTask struct {
	ID          string
	WorkspaceID string
	Name        string

	Protocol   Protocol
	HTTP       *HTTPParams
	ICMP       *ICMPParams
	TCP        *TCPParams

	CronExpr string
	Timezone string // IANA, e.g. "Europe/Moscow"

	TimeoutSeconds      int // 1..300
	RetryCount          int // 0..10
	RetryDelaySeconds   int // 10..3600, flat per-attempt delay
	OverlapPolicy       OverlapPolicy
	MaxInstances        int // >=1
	MaxQueueSize        int // >=0
	ExecutionTimeoutSec *int

	RunningInstances int
	IsActive         bool
	IsPaused         bool

	LastRunAt           *time.Time
	NextRunAt           *time.Time
	LastStatus          string
	ConsecutiveFailures int

	// WorkerID, when set, routes dispatch to that external worker's long-poll
	// queue instead of the local executor pool (§4.4 dispatch target).
	WorkerID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExecutionTimeout returns the duration after which stale-instance cleanup
// may reset RunningInstances, or 0 if unset — a null ExecutionTimeoutSec
// means "never reset" per the codified open question in §9.
func (t *CronTask) ExecutionTimeout() time.Duration {
	if t.ExecutionTimeoutSec == nil {
		return 0
	}
	return time.Duration(*t.ExecutionTimeoutSec) * time.Second
}
