package chain

import (
	"context"
	"testing"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// TestRun_TokenExtractionFlowsToNextStep grounds the round-trip property from
// spec.md §8: step1 extracts a variable via JSONPath, step2's substituted
// header must carry that literal value.
func TestRun_TokenExtractionFlowsToNextStep(t *testing.T) {
	c := &domain.TaskChain{
		StopOnFailure: true,
		Steps: []*domain.ChainStep{
			{
				StepOrder: 0, IsEnabled: true, Method: "POST", URL: "https://api.example.com/login",
				ExtractVariables: map[string]string{"token": "$.access_token"},
			},
			{
				StepOrder: 1, IsEnabled: true, Method: "GET", URL: "https://api.example.com/me",
				Headers: map[string]string{"Authorization": "Bearer {{token}}"},
			},
		},
	}

	var capturedAuthHeader string
	runStep := func(_ context.Context, req StepRequest, _ time.Duration) StepResponse {
		switch req.URL {
		case "https://api.example.com/login":
			return StepResponse{StatusCode: 200, Body: []byte(`{"access_token":"tok-abc123"}`)}
		case "https://api.example.com/me":
			capturedAuthHeader = req.Headers["Authorization"]
			return StepResponse{StatusCode: 200, Body: []byte(`{"ok":true}`)}
		default:
			t.Fatalf("unexpected url %s", req.URL)
			return StepResponse{}
		}
	}

	results, status := Run(context.Background(), c, NewExecutionContext(nil), runStep)

	if status != domain.ChainStatusSuccess {
		t.Fatalf("expected success, got %s", status)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(results))
	}
	if capturedAuthHeader != "Bearer tok-abc123" {
		t.Fatalf("expected substituted header, got %q", capturedAuthHeader)
	}
}

func TestRun_ContinueOnFailureWithStopOnFailureYieldsPartial(t *testing.T) {
	c := &domain.TaskChain{
		StopOnFailure: true,
		Steps: []*domain.ChainStep{
			{StepOrder: 0, IsEnabled: true, Method: "GET", URL: "https://api.example.com/a", ContinueOnFailure: true},
			{StepOrder: 1, IsEnabled: true, Method: "GET", URL: "https://api.example.com/b"},
		},
	}

	runStep := func(_ context.Context, req StepRequest, _ time.Duration) StepResponse {
		if req.URL == "https://api.example.com/a" {
			return StepResponse{StatusCode: 500, ErrKind: domain.ErrorKindRequestError, Err: errFailed}
		}
		return StepResponse{StatusCode: 200, Body: []byte(`{}`)}
	}

	_, status := Run(context.Background(), c, NewExecutionContext(nil), runStep)
	if status != domain.ChainStatusPartial {
		t.Fatalf("expected partial, got %s", status)
	}
}

var errFailed = &stubErr{"boom"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }
