package domain

import (
	"errors"
	"time"
)

var (
	ErrDelayedTaskNotFound  = errors.New("delayed task not found")
	ErrDuplicateIdempotency = errors.New("delayed task with this idempotency key already exists")
)

type DelayedStatus string

const (
	DelayedPending   DelayedStatus = "pending"
	DelayedRunning   DelayedStatus = "running"
	DelayedSuccess   DelayedStatus = "success"
	DelayedFailed    DelayedStatus = "failed"
	DelayedCancelled DelayedStatus = "cancelled"
)

// DelayedTask is a one-shot fire-at entity. Attributes mirror CronTask minus
// schedule/timezone.
type DelayedTask struct {
	ID          string
	WorkspaceID string
	Name        string

	Protocol Protocol
	HTTP     *HTTPParams
	ICMP     *ICMPParams
	TCP      *TCPParams

	ExecuteAt time.Time
	Status    DelayedStatus

	TimeoutSeconds      int
	RetryCount          int
	RetryDelaySeconds   int
	RetryAttempt        int
	OverlapPolicy       OverlapPolicy
	MaxInstances        int
	MaxQueueSize        int
	ExecutionTimeoutSec *int
	RunningInstances    int

	IdempotencyKey *string

	WorkerID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *DelayedTask) ExecutionTimeout() time.Duration {
	if t.ExecutionTimeoutSec == nil {
		return 0
	}
	return time.Duration(*t.ExecutionTimeoutSec) * time.Second
}
