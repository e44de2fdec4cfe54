package domain

import "time"

// OverlapPolicy is the per-entity rule for resolving concurrent firings (C3).
type OverlapPolicy string

const (
	OverlapAllow OverlapPolicy = "allow"
	OverlapSkip  OverlapPolicy = "skip"
	OverlapQueue OverlapPolicy = "queue"
)

// TaskType discriminates which entity kind an overlap/queue/worker-dispatch
// row refers to.
type TaskType string

const (
	TaskTypeCron    TaskType = "cron"
	TaskTypeDelayed TaskType = "delayed"
	TaskTypeChain   TaskType = "chain"
)

// OverlapAction is what the controller decided for one dispatch attempt.
type OverlapAction string

const (
	OverlapActionAllow     OverlapAction = "allow"
	OverlapActionSkip      OverlapAction = "skip"
	OverlapActionQueue     OverlapAction = "queue"
	OverlapActionQueueFull OverlapAction = "queue_full"
)

// OverlapResult is the structured decision returned by the controller so the
// dispatcher can log/meter "why" without re-deriving it from policy+counters.
type OverlapResult struct {
	Action        OverlapAction
	QueuePosition int // valid when Action == OverlapActionQueue
}

// ShouldExecute reports whether the dispatcher may proceed immediately.
func (r OverlapResult) ShouldExecute() bool {
	return r.Action == OverlapActionAllow
}

// SkippedReason renders a short human string for why execution did not
// proceed immediately, or "" if it did.
func (r OverlapResult) SkippedReason() string {
	switch r.Action {
	case OverlapActionSkip:
		return "max_instances reached"
	case OverlapActionQueueFull:
		return "max_queue_size reached"
	case OverlapActionQueue:
		return "queued"
	default:
		return ""
	}
}

// OverlapQueueEntry is a FIFO-ordered pending firing for an entity that was
// at capacity when its tick arrived.
type OverlapQueueEntry struct {
	ID              string
	WorkspaceID     string
	TaskType        TaskType
	TaskID          string
	EnqueuedAt      time.Time
	RetryAttempt    int
	InitialVariables map[string]any
}
