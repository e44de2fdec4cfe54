package repository

import "context"

// WorkspaceRepository is read by C4's ExecutionGC loop to enumerate tenants.
// Per-workspace retention overrides are an external (billing/plan)
// collaborator out of scope here; every workspace uses the configured
// default retention window.
type WorkspaceRepository interface {
	ListIDs(ctx context.Context) ([]string, error)
}
