// seed inserts a workspace, notification settings, and a handful of
// CronTasks/a Heartbeat/a ProcessMonitor into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/cronbox/cronbox-core/internal/infrastructure/postgres"
)

const seedWorkspaceID = "ws_seed_dev_local"

type cronTaskSpec struct {
	name          string
	url           string
	method        string
	retryCount    int
	cronExpr      string
}

var cronTasks = []cronTaskSpec{
	// Happy path — should complete successfully on every fire
	{"seed-cron-get", "https://httpbin.org/get", "GET", 3, "* * * * *"},
	{"seed-cron-post", "https://httpbin.org/post", "POST", 3, "* * * * *"},

	// Will fail — server returns 500, exercises the retry path
	{"seed-cron-fail-500", "https://httpbin.org/status/500", "POST", 3, "*/2 * * * *"},

	// Will fail — not found, single attempt
	{"seed-cron-fail-404", "https://httpbin.org/status/404", "GET", 0, "*/5 * * * *"},

	// Will time out — httpbin delays longer than the task's own timeout
	{"seed-cron-timeout", "https://httpbin.org/delay/35", "GET", 1, "*/10 * * * *"},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx,
		`INSERT INTO workspaces (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		seedWorkspaceID,
	); err != nil {
		log.Fatalf("upsert workspace: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO notification_settings (workspace_id, telegram_enabled, telegram_chat_ids,
			email_enabled, email_addresses, webhook_enabled, webhook_url, webhook_secret, language)
		VALUES ($1, false, '{}', false, '{}', false, '', '', 'en')
		ON CONFLICT (workspace_id) DO NOTHING`,
		seedWorkspaceID,
	); err != nil {
		log.Fatalf("upsert notification settings: %v", err)
	}

	var inserted, skipped int
	var taskIDs []string

	for _, spec := range cronTasks {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO cron_tasks (
				workspace_id, name, protocol, http_params, cron_expr, timezone,
				timeout_seconds, retry_count, retry_delay_seconds,
				overlap_policy, max_instances, max_queue_size, execution_timeout_sec,
				is_active, is_paused
			) VALUES ($1, $2, 'http', $3, $4, 'UTC', 10, $5, 5, 'skip', 1, 0, 60, true, false)
			ON CONFLICT (workspace_id, name) DO NOTHING
			RETURNING id`,
			seedWorkspaceID, spec.name,
			fmt.Sprintf(`{"url":%q,"method":%q,"headers":{},"body":null}`, spec.url, spec.method),
			spec.cronExpr, spec.retryCount,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			skipped++
			continue
		}
		if err != nil {
			log.Fatalf("insert cron task %s: %v", spec.name, err)
		}
		if id == "" {
			skipped++
		} else {
			taskIDs = append(taskIDs, id)
			inserted++
		}
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO heartbeats (workspace_id, name, expected_interval_seconds, grace_period_seconds, ping_token, status)
		VALUES ($1, 'seed-heartbeat', 300, 60, 'seed-heartbeat-token-local-dev', 'waiting')
		ON CONFLICT (workspace_id, name) DO NOTHING`,
		seedWorkspaceID,
	); err != nil {
		log.Fatalf("insert heartbeat: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO process_monitors (
			workspace_id, name, schedule_type, cron_expr, timezone,
			start_grace_period_seconds, end_timeout_seconds, start_token, end_token,
			concurrency_policy, notify_on_missed_start, notify_on_missed_end,
			notify_on_recovery, notify_on_success, status
		) VALUES ($1, 'seed-process-monitor', 'cron', '0 3 * * *', 'UTC', 300, 3600,
			'seed-process-start-token-local-dev', 'seed-process-end-token-local-dev',
			'skip', true, true, true, false, 'waiting_start')
		ON CONFLICT (workspace_id, name) DO NOTHING`,
		seedWorkspaceID,
	); err != nil {
		log.Fatalf("insert process monitor: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Workspace ID:      %s\n", seedWorkspaceID)
	fmt.Printf("  CronTasks created: %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Println("  Heartbeat token:   seed-heartbeat-token-local-dev")
	fmt.Println("  Process monitor start/end tokens: seed-process-{start,end}-token-local-dev")
	fmt.Println()

	if len(taskIDs) > 0 {
		fmt.Println("  Sample cron task IDs:")
		for _, id := range taskIDs {
			fmt.Printf("    %s\n", id)
		}
	}

	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  cmd/scheduler fires seed-cron-get/seed-cron-post every minute; watch its logs.")
	fmt.Println()
	fmt.Println("  Ping the seeded heartbeat to keep it healthy:")
	fmt.Println("    curl -s http://localhost:8080/ping/heartbeat/seed-heartbeat-token-local-dev")
	fmt.Println()
	fmt.Println("  Report the seeded process monitor's start/end:")
	fmt.Println("    curl -s http://localhost:8080/ping/process/start/seed-process-start-token-local-dev")
	fmt.Println("    curl -s http://localhost:8080/ping/process/end/seed-process-end-token-local-dev")
	fmt.Println()
	fmt.Println("  What to expect from the cron tasks once the scheduler is running:")
	fmt.Println("    seed-cron-get/seed-cron-post  →  complete (2xx from httpbin)")
	fmt.Println("    seed-cron-fail-500            →  fails, retried per retry_count")
	fmt.Println("    seed-cron-fail-404             →  fails, no retry")
	fmt.Println("    seed-cron-timeout              →  fails with a timeout error")
}
