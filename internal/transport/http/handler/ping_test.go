package handler_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/notify"
	"github.com/cronbox/cronbox-core/internal/repository"
	"github.com/cronbox/cronbox-core/internal/scheduler"
	"github.com/cronbox/cronbox-core/internal/transport/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHeartbeatRepo struct {
	byToken   map[string]*domain.Heartbeat
	recordErr error
	wasFailed bool
}

func (f *fakeHeartbeatRepo) GetByToken(_ context.Context, token string) (*domain.Heartbeat, error) {
	hb, ok := f.byToken[token]
	if !ok {
		return nil, domain.ErrHeartbeatNotFound
	}
	return hb, nil
}

func (f *fakeHeartbeatRepo) RecordPing(_ context.Context, id string, at time.Time, _ string) (*domain.Heartbeat, bool, error) {
	if f.recordErr != nil {
		return nil, false, f.recordErr
	}
	for _, hb := range f.byToken {
		if hb.ID == id {
			hb.Status = domain.HeartbeatHealthy
			hb.LastPingAt = &at
			return hb, f.wasFailed, nil
		}
	}
	return nil, false, domain.ErrHeartbeatNotFound
}

func (f *fakeHeartbeatRepo) SweepLate(_ context.Context, _ time.Time, _ int) ([]*domain.Heartbeat, error) {
	return nil, nil
}

func (f *fakeHeartbeatRepo) SweepDead(_ context.Context, _ time.Time, _ int) ([]*domain.Heartbeat, error) {
	return nil, nil
}

type fakeProcessMonitorRepo struct {
	byStartToken map[string]*domain.ProcessMonitor
	byEndToken   map[string]*domain.ProcessMonitor
	startErr     error
	endErr       error
	runID        string
	durationMS   int64
}

func (f *fakeProcessMonitorRepo) GetByStartToken(_ context.Context, token string) (*domain.ProcessMonitor, error) {
	mon, ok := f.byStartToken[token]
	if !ok {
		return nil, domain.ErrProcessMonitorNotFound
	}
	return mon, nil
}

func (f *fakeProcessMonitorRepo) GetByEndToken(_ context.Context, token string) (*domain.ProcessMonitor, error) {
	mon, ok := f.byEndToken[token]
	if !ok {
		return nil, domain.ErrProcessMonitorNotFound
	}
	return mon, nil
}

func (f *fakeProcessMonitorRepo) HandleStartPing(_ context.Context, _ string, _ time.Time) (*domain.ProcessMonitor, string, bool, error) {
	if f.startErr != nil {
		return nil, "", false, f.startErr
	}
	for _, mon := range f.byStartToken {
		mon.Status = domain.ProcessRunning
		return mon, f.runID, false, nil
	}
	return nil, "", false, domain.ErrProcessMonitorNotFound
}

func (f *fakeProcessMonitorRepo) HandleEndPing(_ context.Context, _ string, _ time.Time, computeNext func(*domain.ProcessMonitor) time.Time) (*domain.ProcessMonitor, int64, error) {
	if f.endErr != nil {
		return nil, 0, f.endErr
	}
	for _, mon := range f.byEndToken {
		mon.Status = domain.ProcessWaitingStart
		if computeNext != nil {
			computeNext(mon)
		}
		return mon, f.durationMS, nil
	}
	return nil, 0, domain.ErrProcessMonitorNotFound
}

func (f *fakeProcessMonitorRepo) AppendEvent(_ context.Context, _ *domain.ProcessMonitorEvent) error {
	return nil
}

func (f *fakeProcessMonitorRepo) SweepMissedStarts(_ context.Context, _ time.Time, _ int) ([]*domain.ProcessMonitor, error) {
	return nil, nil
}

func (f *fakeProcessMonitorRepo) SweepMissedEnds(_ context.Context, _ time.Time, _ int) ([]*domain.ProcessMonitor, error) {
	return nil, nil
}

type fakeNotifSettingsRepo struct{}

func (fakeNotifSettingsRepo) GetByWorkspaceID(_ context.Context, workspaceID string) (*domain.NotificationSettings, error) {
	return &domain.NotificationSettings{WorkspaceID: workspaceID, Language: "en"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newTestEngine(heartbeats repository.HeartbeatRepository, processMons repository.ProcessMonitorRepository) *scheduler.Engine {
	return scheduler.NewEngine(scheduler.Deps{
		Logger:        testLogger(),
		Heartbeats:    heartbeats,
		ProcessMons:   processMons,
		NotifSettings: fakeNotifSettingsRepo{},
		Notifier:      notify.NewDispatcher(testLogger()),
	})
}

func newPingRouter(heartbeats repository.HeartbeatRepository, processMons repository.ProcessMonitorRepository) *gin.Engine {
	h := handler.NewPingHandler(heartbeats, processMons, newTestEngine(heartbeats, processMons), testLogger())
	r := gin.New()
	r.GET("/ping/heartbeat/:token", h.Heartbeat)
	r.GET("/ping/process/start/:token", h.ProcessStart)
	r.GET("/ping/process/end/:token", h.ProcessEnd)
	return r
}

func TestHeartbeat_UnknownToken_Returns404(t *testing.T) {
	repo := &fakeHeartbeatRepo{byToken: map[string]*domain.Heartbeat{}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/heartbeat/nope", nil)
	newPingRouter(repo, &fakeProcessMonitorRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHeartbeat_Paused_ReturnsOKIgnored(t *testing.T) {
	repo := &fakeHeartbeatRepo{byToken: map[string]*domain.Heartbeat{
		"tok": {ID: "hb-1", WorkspaceID: "ws-1", Status: domain.HeartbeatPaused},
	}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/heartbeat/tok", nil)
	newPingRouter(repo, &fakeProcessMonitorRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if want := `"ignored"`; !strings.Contains(w.Body.String(), want) {
		t.Errorf("body %q does not contain %q", w.Body.String(), want)
	}
}

func TestHeartbeat_HealthyToken_RecordsPing(t *testing.T) {
	repo := &fakeHeartbeatRepo{byToken: map[string]*domain.Heartbeat{
		"tok": {ID: "hb-1", WorkspaceID: "ws-1", Status: domain.HeartbeatLate},
	}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/heartbeat/tok", nil)
	newPingRouter(repo, &fakeProcessMonitorRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if repo.byToken["tok"].Status != domain.HeartbeatHealthy {
		t.Errorf("status not updated to healthy: %v", repo.byToken["tok"].Status)
	}
}

func TestHeartbeat_RecordPingError_Returns200(t *testing.T) {
	repo := &fakeHeartbeatRepo{
		byToken:   map[string]*domain.Heartbeat{"tok": {ID: "hb-1"}},
		recordErr: errors.New("db down"),
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/heartbeat/tok", nil)
	newPingRouter(repo, &fakeProcessMonitorRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (RecordPing failures are logged, not surfaced to the caller)", w.Code)
	}
}

func TestProcessStart_UnknownToken_Returns404(t *testing.T) {
	repo := &fakeProcessMonitorRepo{byStartToken: map[string]*domain.ProcessMonitor{}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/process/start/nope", nil)
	newPingRouter(&fakeHeartbeatRepo{}, repo).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProcessStart_Conflict_Returns409(t *testing.T) {
	repo := &fakeProcessMonitorRepo{
		byStartToken: map[string]*domain.ProcessMonitor{"tok": {ID: "pm-1", Status: domain.ProcessWaitingStart}},
		startErr:     domain.ErrProcessMonitorConflict,
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/process/start/tok", nil)
	newPingRouter(&fakeHeartbeatRepo{}, repo).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestProcessStart_Success_ReturnsRunID(t *testing.T) {
	repo := &fakeProcessMonitorRepo{
		byStartToken: map[string]*domain.ProcessMonitor{"tok": {ID: "pm-1", Status: domain.ProcessWaitingStart}},
		runID:        "run-123",
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/process/start/tok", nil)
	newPingRouter(&fakeHeartbeatRepo{}, repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "run-123") {
		t.Errorf("body %q does not contain run id", w.Body.String())
	}
}

func TestProcessEnd_NotRunning_Returns409(t *testing.T) {
	repo := &fakeProcessMonitorRepo{
		byEndToken: map[string]*domain.ProcessMonitor{"tok": {ID: "pm-1", Status: domain.ProcessWaitingStart}},
		endErr:     domain.ErrProcessMonitorNotRunning,
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/process/end/tok", nil)
	newPingRouter(&fakeHeartbeatRepo{}, repo).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestProcessEnd_Paused_ReturnsOKIgnored(t *testing.T) {
	repo := &fakeProcessMonitorRepo{
		byEndToken: map[string]*domain.ProcessMonitor{"tok": {ID: "pm-1", Status: domain.ProcessPaused}},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping/process/end/tok", nil)
	newPingRouter(&fakeHeartbeatRepo{}, repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ignored"`) {
		t.Errorf("body %q does not contain ignored", w.Body.String())
	}
}

