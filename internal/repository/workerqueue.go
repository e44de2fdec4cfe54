package repository

import (
	"context"
	"time"
)

// WorkerTaskInfo is the payload an external worker receives from a long-poll
// dequeue, per §6's external worker protocol.
type WorkerTaskInfo struct {
	TaskID            string
	TaskType          string // "cron" or "delayed"
	URL               string
	Method            string
	Headers           map[string]string
	Body              *string
	TimeoutSeconds    int
	RetryCount        int
	RetryDelaySeconds int
	WorkspaceID       string
	TaskName          string
}

// WorkerQueue is the external-worker long-poll dispatch queue (§6), kept
// separate from the Postgres row-lock core because it's a pure hand-off
// mechanism with no due-selection semantics of its own.
type WorkerQueue interface {
	// Push enqueues a task for a specific worker id.
	Push(ctx context.Context, workerID string, task WorkerTaskInfo) error

	// Poll blocks up to timeout waiting for a task on workerID's queue,
	// returning (nil, nil) on timeout with nothing available.
	Poll(ctx context.Context, workerID string, timeout time.Duration) (*WorkerTaskInfo, error)
}
