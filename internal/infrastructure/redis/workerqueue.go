// Package redis backs the external-worker long-poll dispatch queue (§6).
// It is deliberately the only non-Postgres storage in the module: due
// selection, overlap accounting, and every other piece of core state stays
// on the row-locked Postgres path described in internal/infrastructure/postgres;
// this is a pure hand-off mechanism with no due-selection semantics of its own.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cronbox/cronbox-core/internal/repository"
)

// WorkerQueue implements repository.WorkerQueue on top of a Redis list per
// worker id: Push does LPUSH, Poll does a blocking BRPOP so a worker's
// long-poll request returns the instant a task is available instead of
// spinning.
type WorkerQueue struct {
	client *redis.Client
}

func NewWorkerQueue(client *redis.Client) *WorkerQueue {
	return &WorkerQueue{client: client}
}

func queueKey(workerID string) string {
	return "cronbox:worker_queue:" + workerID
}

func (q *WorkerQueue) Push(ctx context.Context, workerID string, task repository.WorkerTaskInfo) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal worker task: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey(workerID), payload).Err(); err != nil {
		return fmt.Errorf("push worker task: %w", err)
	}
	return nil
}

func (q *WorkerQueue) Poll(ctx context.Context, workerID string, timeout time.Duration) (*repository.WorkerTaskInfo, error) {
	result, err := q.client.BRPop(ctx, timeout, queueKey(workerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll worker queue: %w", err)
	}
	// BRPop returns [key, value]; we only pushed one key.
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result shape: %v", result)
	}

	var task repository.WorkerTaskInfo
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal worker task: %w", err)
	}
	return &task, nil
}
