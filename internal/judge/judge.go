// Package judge talks to the external code execution service.
package judge

import (
	"context"
	"errors"

	"github.com/stemsi/exstem-assessment/internal/model"
)

var (
	// ErrExecutionTimeout is returned when the executor did not answer within
	// the per-call deadline.
	ErrExecutionTimeout = errors.New("code execution timed out")
	// ErrExecutionUnavailable is returned once retries against an unreachable
	// or failing executor are exhausted.
	ErrExecutionUnavailable = errors.New("code execution service unavailable")
	// ErrExecutionRejected is returned when the executor refuses the request
	// itself, e.g. for an unsupported language.
	ErrExecutionRejected = errors.New("code execution request rejected")
)

// ExecuteRequest is one judged run of code against an ordered set of inputs.
type ExecuteRequest struct {
	Code      string
	Language  string
	TestCases []model.TestCase
}

// ExecutionResult is aligned index-for-index with ExecuteRequest.TestCases.
type ExecutionResult struct {
	Output string  `json:"output"`
	Error  *string `json:"error,omitempty"`
}

// Executor runs submitted code. Implementations enforce their own timeout.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) ([]ExecutionResult, error)
}
