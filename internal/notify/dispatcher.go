package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/metrics"
)

// Dispatcher renders an event once and fans it out to every registered
// channel concurrently, exactly mirroring the teacher pack's alert
// dispatcher: one slow or dead channel never delays or fails the others,
// and every per-channel error is logged, never returned (§4.9).
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDispatcher wires the given channels behind a per-workspace rate limit
// of 60 events per minute (burst 5) so a misbehaving integration can't flood a
// Telegram bot token or webhook endpoint shared across a tenant's events.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Dispatch looks up no workspace state itself — settings is already resolved
// by the caller (repository read) — renders the event in settings.Language
// and sends it to every channel in parallel.
func (d *Dispatcher) Dispatch(ctx context.Context, settings *domain.NotificationSettings, ev Event) {
	if settings == nil {
		return
	}

	limiter := d.limiterFor(settings.WorkspaceID)
	if !limiter.Allow() {
		d.logger.WarnContext(ctx, "notification rate limited", "workspace_id", settings.WorkspaceID, "event", ev.Type)
		return
	}

	rendered, err := Render(settings.Language, ev)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to render notification", "error", err, "event", ev.Type)
		return
	}

	view := &NotificationSettingsView{
		TelegramEnabled: settings.TelegramEnabled,
		TelegramChatIDs: settings.TelegramChatIDs,
		EmailEnabled:    settings.EmailEnabled,
		EmailAddresses:  settings.EmailAddresses,
		WebhookEnabled:  settings.WebhookEnabled,
		WebhookURL:      settings.WebhookURL,
		WebhookSecret:   settings.WebhookSecret,
		Language:        settings.Language,
	}

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := ch.Send(sendCtx, view, rendered, ev); err != nil {
				d.logger.ErrorContext(ctx, "notification channel failed",
					"channel", ch.Name(), "workspace_id", settings.WorkspaceID, "event", ev.Type, "error", err)
				metrics.NotificationsSentTotal.WithLabelValues(ch.Name(), "failure").Inc()
				return
			}
			metrics.NotificationsSentTotal.WithLabelValues(ch.Name(), "success").Inc()
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) limiterFor(workspaceID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[workspaceID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(60.0/60.0), 5)
		d.limiters[workspaceID] = l
	}
	return l
}
