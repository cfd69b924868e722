// Package errs defines the error kinds shared across the engine's
// components (spec.md §7), following the teacher's action_validator.go
// style of a flat sentinel block per concern, plus a Retryable-carrying
// wrapper mirroring orchestrator.go's EngagementError for the boundary
// between the core and its outer runner (the redis pipeline / HTTP API).
package errs

import "errors"

var (
	// ErrBackend covers LLM or search provider outages surfaced by a gateway.
	ErrBackend = errors.New("backend error")
	// ErrRateLimit is retriable inside the gateway that produced it.
	ErrRateLimit = errors.New("rate limited")
	// ErrParse means an LLM response could not be parsed into the expected
	// structured shape. Per spec.md §7 this degrades the associated score to
	// zero and records an issue; it never raises past the component boundary.
	ErrParse = errors.New("parse error")
	// ErrValidationRejected means a question failed the dual-model/specificity
	// thresholds.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrHierarchyRejected means a child answer does not belong to any parent
	// keyword under the hierarchy manager's matching rules.
	ErrHierarchyRejected = errors.New("hierarchy rejected")
	// ErrCircularRejected means the circular-question detector flagged the
	// candidate.
	ErrCircularRejected = errors.New("circular question rejected")
	// ErrBudgetExhausted means a call or wall-clock cap was hit.
	ErrBudgetExhausted = errors.New("budget exhausted")
	// ErrCancelled means the caller's context was cancelled before a
	// suspension point.
	ErrCancelled = errors.New("cancelled")
)

// StepError wraps an error with the Retryable classification the Tree
// Orchestrator uses to decide whether to retry a node with a different
// keyword/extension type (per RETRIES_PER_NODE) or move on. Local rejections
// (ValidationRejected, HierarchyRejected, CircularRejected) are retryable;
// budget and cancellation are not.
type StepError struct {
	Err       error
	Retryable bool
}

func (e *StepError) Error() string {
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func NewRetryable(err error) *StepError {
	return &StepError{Err: err, Retryable: true}
}

func NewFatal(err error) *StepError {
	return &StepError{Err: err, Retryable: false}
}

// IsRetryable reports whether err (or a StepError wrapping it) should be
// retried with a different keyword/extension type rather than abandoning
// the node.
func IsRetryable(err error) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Retryable
	}
	switch {
	case errors.Is(err, ErrBudgetExhausted), errors.Is(err, ErrCancelled), errors.Is(err, ErrBackend):
		return false
	case errors.Is(err, ErrValidationRejected), errors.Is(err, ErrHierarchyRejected), errors.Is(err, ErrCircularRejected), errors.Is(err, ErrRateLimit):
		return true
	default:
		return false
	}
}
