package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

type fakeChannel struct {
	name    string
	fail    bool
	sent    atomic.Bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, _ *NotificationSettingsView, _ Rendered, _ Event) error {
	f.sent.Store(true)
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func TestDispatch_OneChannelFailureDoesNotBlockAnother(t *testing.T) {
	failing := &fakeChannel{name: "webhook", fail: true}
	ok := &fakeChannel{name: "email"}

	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), failing, ok)
	settings := &domain.NotificationSettings{WorkspaceID: "ws-1", EmailEnabled: true, EmailAddresses: []string{"a@example.com"}}

	d.Dispatch(context.Background(), settings, Event{Type: EventFailure, EntityName: "nightly-sync", OccurredAt: time.Now()})

	if !failing.sent.Load() || !ok.sent.Load() {
		t.Fatal("expected both channels to be attempted")
	}
}

func TestDispatch_NilSettingsIsNoop(t *testing.T) {
	ch := &fakeChannel{name: "email"}
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), ch)
	d.Dispatch(context.Background(), nil, Event{Type: EventSuccess})
	if ch.sent.Load() {
		t.Fatal("expected no dispatch for nil settings")
	}
}

func TestRender_UnknownLanguageFallsBackToEnglish(t *testing.T) {
	ev := Event{Type: EventFailure, EntityName: "sync-job", OccurredAt: time.Now(), Data: map[string]any{"error": "timeout"}}
	rendered, err := Render("fr", ev)
	if err != nil {
		t.Fatal(err)
	}
	if rendered.Subject == "" || rendered.Text == "" {
		t.Fatal("expected non-empty rendering")
	}
}
