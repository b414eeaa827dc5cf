package executor

import (
	"context"
	"time"
)

// Status classifies how an execution ended. A candidate's program failing
// (NonZeroExit, TimedOut) is an expected outcome, not a platform error —
// only provisioning and gateway problems are infrastructure failures.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusNonZeroExit        Status = "non_zero_exit"
	StatusTimedOut           Status = "timed_out"
	StatusProvisioningFailed Status = "provisioning_failed"
	StatusRejectedInput      Status = "rejected_input"
	StatusGatewayUnavailable Status = "gateway_unavailable"
)

// Request represents a single code execution request. Transient — created
// per call, never persisted as-is.
type Request struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

// Result represents the output and status of a code execution.
type Result struct {
	Status   Status        `json:"status"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"-"`
}

// Executor is the core interface for running untrusted code.
// Both the local Docker sandbox and the remote gateway implement it.
//
// Contract: a returned error means the executor itself broke (wrong
// wiring, closed client). Everything about the submitted program —
// including timeouts and provisioning failures — comes back as a Result
// with the matching Status.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
