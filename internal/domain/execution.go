package domain

import (
	"errors"
	"time"
)

var ErrExecutionNotFound = errors.New("execution not found")

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Execution is the C2 audit record for one attempt of a CronTask or
// DelayedTask. Exactly one of HTTPResult/ICMPResult/TCPResult is populated,
// matching the parent task's Protocol.
type Execution struct {
	ID          string
	WorkspaceID string
	TaskType    TaskType
	TaskID      string

	RetryAttempt int
	WorkerID     string

	Status     ExecutionStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	DurationMS *int64

	HTTPResult *HTTPProbeResult
	ICMPResult *ICMPProbeResult
	TCPResult  *TCPProbeResult

	Error     string
	ErrorKind ErrorKind
}

// ChainExecution is the audit record for one run of a TaskChain.
type ChainExecution struct {
	ID          string
	WorkspaceID string
	ChainID     string

	Status     ChainStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string

	Steps []*StepExecution
}

// StepExecution is the audit record for one ChainStep within a
// ChainExecution.
type StepExecution struct {
	ID               string
	ChainExecutionID string
	StepID           string
	StepOrder        int

	Outcome    StepOutcome
	StartedAt  time.Time
	FinishedAt *time.Time

	StatusCode       *int
	ResponseBody     []byte
	ExtractedVars    map[string]any
	ConditionDetails string
	Error            string
	ErrorKind        ErrorKind
}
