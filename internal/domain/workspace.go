package domain

import (
	"errors"
	"time"
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

// Workspace is the tenant isolation unit. Every task, chain, monitor,
// execution, and queue entry belongs to exactly one.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// NotificationSettings holds the per-workspace fan-out configuration that C9
// reads before rendering and dispatching. Template content and i18n copy are
// an external collaborator; this only carries what's needed to pick a channel,
// an address, and a language.
type NotificationSettings struct {
	WorkspaceID string

	TelegramEnabled bool
	TelegramChatIDs []int64

	EmailEnabled   bool
	EmailAddresses []string

	WebhookEnabled bool
	WebhookURL     string
	WebhookSecret  string

	// Language selects the template set; falls back to "en" when empty or
	// when no template set is registered for it.
	Language string
}
