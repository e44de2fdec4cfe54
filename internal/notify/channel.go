package notify

import "context"

// Channel delivers a rendered event to one transport. Implementations must
// treat ctx's deadline as a hard per-send timeout and must never panic —
// the dispatcher runs every channel concurrently and swallows individual
// failures (§4.9).
type Channel interface {
	Name() string
	Send(ctx context.Context, settings *NotificationSettingsView, rendered Rendered, ev Event) error
}

// NotificationSettingsView is the subset of domain.NotificationSettings a
// channel needs. Kept separate from the domain type so channels don't all
// have to import internal/domain just to read a few fields.
type NotificationSettingsView struct {
	TelegramEnabled bool
	TelegramChatIDs []int64

	EmailEnabled   bool
	EmailAddresses []string

	WebhookEnabled bool
	WebhookURL     string
	WebhookSecret  string

	Language string
}
