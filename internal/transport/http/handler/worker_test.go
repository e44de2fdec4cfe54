package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cronbox/cronbox-core/internal/repository"
	"github.com/cronbox/cronbox-core/internal/transport/http/handler"
)

type fakeWorkerQueue struct {
	task *repository.WorkerTaskInfo
	err  error
}

func (f *fakeWorkerQueue) Push(_ context.Context, _ string, _ repository.WorkerTaskInfo) error {
	return nil
}

func (f *fakeWorkerQueue) Poll(_ context.Context, _ string, _ time.Duration) (*repository.WorkerTaskInfo, error) {
	return f.task, f.err
}

func newWorkerRouter(queue repository.WorkerQueue) *gin.Engine {
	h := handler.NewWorkerHandler(queue, newTestEngine(&fakeHeartbeatRepo{}, &fakeProcessMonitorRepo{}), time.Second, testLogger())
	r := gin.New()
	r.GET("/worker/poll", func(c *gin.Context) { c.Set("workerID", "worker-1"); h.Poll(c) })
	r.POST("/worker/report", func(c *gin.Context) { c.Set("workerID", "worker-1"); h.Report(c) })
	return r
}

func TestPoll_NoTaskAvailable_Returns204(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/worker/poll", nil)
	newWorkerRouter(&fakeWorkerQueue{}).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestPoll_TaskAvailable_Returns200WithTask(t *testing.T) {
	queue := &fakeWorkerQueue{task: &repository.WorkerTaskInfo{TaskID: "task-1", TaskType: "cron", URL: "https://example.com"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/worker/poll", nil)
	newWorkerRouter(queue).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "task-1") {
		t.Errorf("body %q does not contain task id", w.Body.String())
	}
}

func TestPoll_QueueError_Returns500(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/worker/poll", nil)
	newWorkerRouter(&fakeWorkerQueue{err: errors.New("redis down")}).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestReport_InvalidJSON_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/worker/report", strings.NewReader(`{bad`))
	req.Header.Set("Content-Type", "application/json")
	newWorkerRouter(&fakeWorkerQueue{}).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReport_MissingRequiredFields_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/worker/report", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	newWorkerRouter(&fakeWorkerQueue{}).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReport_UnsupportedTaskType_Returns400(t *testing.T) {
	body := `{"task_id":"t1","task_type":"chain","workspace_id":"ws1","result":{"success":true}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/worker/report", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newWorkerRouter(&fakeWorkerQueue{}).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
