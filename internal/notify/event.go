// Package notify implements the C9 notification fan-out: rendering a
// lifecycle event in the recipient's language and dispatching it in
// parallel to every channel a workspace has enabled.
package notify

import "time"

// EventType enumerates the lifecycle events C5/C6/C7/C8 can raise (§4.9).
type EventType string

const (
	EventSuccess      EventType = "success"
	EventFailure      EventType = "failure"
	EventRecovery     EventType = "recovery"
	EventMissedStart  EventType = "missed_start"
	EventMissedEnd    EventType = "missed_end"
	EventSubscription EventType = "subscription"
)

// Event is the payload handed to the dispatcher by a scheduler loop or the
// chain/process-monitor sweep. Data carries template fields (entity name,
// error message, duration, etc.) — its exact keys are a concern of the
// caller and the template set, not of this package.
type Event struct {
	Type        EventType
	WorkspaceID string
	EntityKind  string // "cron_task", "delayed_task", "chain", "process_monitor"
	EntityID    string
	EntityName  string
	OccurredAt  time.Time
	Data        map[string]any
}
