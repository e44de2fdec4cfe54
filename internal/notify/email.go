package notify

import (
	"context"
	"fmt"

	"github.com/cronbox/cronbox-core/internal/email"
)

// EmailChannel fans an event out to every address a workspace has
// registered, reusing the teacher's Sender abstraction (LogSender in local
// dev, ResendSender otherwise) instead of a one-off magic-link sender.
type EmailChannel struct {
	sender email.Sender
}

func NewEmailChannel(sender email.Sender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, settings *NotificationSettingsView, rendered Rendered, _ Event) error {
	if !settings.EmailEnabled || len(settings.EmailAddresses) == 0 {
		return nil
	}

	var firstErr error
	for _, addr := range settings.EmailAddresses {
		if err := c.sender.Send(ctx, addr, rendered.Subject, rendered.Text); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("email %s: %w", addr, err)
			}
		}
	}
	return firstErr
}
