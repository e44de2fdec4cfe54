package repository

import (
	"context"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// NotificationSettingsRepository is read by C9 before rendering and
// dispatching an event.
type NotificationSettingsRepository interface {
	GetByWorkspaceID(ctx context.Context, workspaceID string) (*domain.NotificationSettings, error)
}
