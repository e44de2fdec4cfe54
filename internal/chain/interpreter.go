package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// ExecutionContext is the interpreter's running state across steps (§4.6).
type ExecutionContext struct {
	Variables         map[string]any
	PreviousStatusCode int
	PreviousBody      []byte

	Completed int
	Failed    int
	Skipped   int

	Error string
}

func NewExecutionContext(initial map[string]any) *ExecutionContext {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &ExecutionContext{Variables: vars}
}

// StepRequest is a fully-substituted outbound request, ready to send.
type StepRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    *string
}

// StepResponse is what a step runner returns for one attempt.
type StepResponse struct {
	StatusCode int
	Body       []byte
	Err        error
	ErrKind    domain.ErrorKind
}

// StepRunner performs the actual HTTP call for one step attempt. Supplied by
// the caller (the executor worker) so this package stays free of transport
// concerns — the same separation the teacher keeps between
// internal/scheduler.Executor and internal/scheduler.Worker.
type StepRunner func(ctx context.Context, req StepRequest, timeout time.Duration) StepResponse

// PrepareStepRequest substitutes {{var}} placeholders into a step's url,
// headers, and body against the current variable set.
func PrepareStepRequest(step *domain.ChainStep, vars map[string]any) (StepRequest, error) {
	url, err := Substitute(step.URL, vars)
	if err != nil {
		return StepRequest{}, err
	}
	headers, err := SubstituteMap(step.Headers, vars)
	if err != nil {
		return StepRequest{}, err
	}
	var body *string
	if step.Body != nil {
		b, err := Substitute(*step.Body, vars)
		if err != nil {
			return StepRequest{}, err
		}
		body = &b
	}
	return StepRequest{Method: step.Method, URL: url, Headers: headers, Body: body}, nil
}

// StepResult is what Run records per step for the caller to persist as a
// StepExecution.
type StepResult struct {
	Step             *domain.ChainStep
	Outcome          domain.StepOutcome
	StatusCode       *int
	Body             []byte
	ExtractedVars    map[string]any
	ConditionDetails string
	Error            string
	ErrorKind        domain.ErrorKind
}

// Run executes every enabled step of chain in order against ctx's running
// ExecutionContext, calling runStep for the network portion of each attempt.
// Returns the per-step results and the chain's final status.
func Run(c context.Context, chainDomain *domain.TaskChain, execCtx *ExecutionContext, runStep StepRunner) ([]StepResult, domain.ChainStatus) {
	var results []StepResult
	total := 0

	for _, step := range chainDomain.Steps {
		if !step.IsEnabled {
			continue
		}
		total++

		if step.Condition != nil {
			ok, details := EvaluateCondition(step.Condition, execCtx.PreviousStatusCode, execCtx.PreviousBody)
			if !ok {
				execCtx.Skipped++
				results = append(results, StepResult{
					Step: step, Outcome: domain.StepOutcomeSkipped, ConditionDetails: details,
				})
				continue
			}
		}

		result := runOneStep(c, step, execCtx, runStep)
		results = append(results, result)

		switch result.Outcome {
		case domain.StepOutcomeSuccess:
			execCtx.Completed++
			execCtx.PreviousStatusCode = derefInt(result.StatusCode)
			execCtx.PreviousBody = result.Body
			for k, v := range result.ExtractedVars {
				execCtx.Variables[k] = v
			}
		case domain.StepOutcomeFailed:
			execCtx.Failed++
			execCtx.PreviousStatusCode = derefInt(result.StatusCode)
			execCtx.PreviousBody = result.Body

			if step.ContinueOnFailure || !chainDomain.StopOnFailure {
				continue
			}
			execCtx.Error = fmt.Sprintf("Chain stopped at step %d: %s", step.StepOrder, result.Error)
			return results, DetermineChainStatus(execCtx.Completed, execCtx.Failed, execCtx.Skipped, total, chainDomain.StopOnFailure)
		}
	}

	return results, DetermineChainStatus(execCtx.Completed, execCtx.Failed, execCtx.Skipped, total, chainDomain.StopOnFailure)
}

func runOneStep(c context.Context, step *domain.ChainStep, execCtx *ExecutionContext, runStep StepRunner) StepResult {
	req, err := PrepareStepRequest(step, execCtx.Variables)
	if err != nil {
		return StepResult{
			Step: step, Outcome: domain.StepOutcomeFailed,
			Error: err.Error(), ErrorKind: domain.ErrorKindVariableSubstitution,
		}
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	var resp StepResponse
	for attempt := 0; attempt <= step.RetryCount; attempt++ {
		resp = runStep(c, req, timeout)
		if resp.Err == nil {
			break
		}
		if attempt < step.RetryCount {
			time.Sleep(time.Duration(step.RetryDelaySeconds) * time.Second)
		}
	}

	if resp.Err != nil {
		return StepResult{
			Step: step, Outcome: domain.StepOutcomeFailed,
			StatusCode: intPtr(resp.StatusCode), Body: resp.Body,
			Error: resp.Err.Error(), ErrorKind: resp.ErrKind,
		}
	}

	extracted := ExtractVariables(resp.Body, step.ExtractVariables)
	return StepResult{
		Step: step, Outcome: domain.StepOutcomeSuccess,
		StatusCode: intPtr(resp.StatusCode), Body: resp.Body, ExtractedVars: extracted,
	}
}

// DetermineChainStatus implements the final-status rule from §4.6: all
// success -> success, zero completed -> failed, mix -> partial.
// stopOnFailure is accepted for parity with the source signature but does
// not affect the outcome — it only shapes how many steps get the chance to
// run before Run returns early.
func DetermineChainStatus(completed, failed, skipped, total int, stopOnFailure bool) domain.ChainStatus {
	_ = stopOnFailure
	if completed == total && total > 0 {
		return domain.ChainStatusSuccess
	}
	if completed == 0 {
		return domain.ChainStatusFailed
	}
	return domain.ChainStatusPartial
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intPtr(v int) *int { return &v }
