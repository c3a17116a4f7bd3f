package pipeline

import "errors"

// ErrNotFound is returned by Export when the plan hash has no live cache
// entry (never computed, expired or evicted).
var ErrNotFound = errors.New("result not cached")

// ErrUnsupportedFormat is returned by Export for formats other than csv
// and json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// PlanError marks a plan the pipeline rejected before execution for a
// reason outside the dedicated rejection types: unknown intent, unknown
// metric, malformed fields.
type PlanError struct {
	Err error
}

func (e *PlanError) Error() string {
	return "invalid plan: " + e.Err.Error()
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// ExecutionFailedError surfaces a mart query that kept failing after the
// bounded retries.
type ExecutionFailedError struct {
	Attempts int
	Err      error
}

func (e *ExecutionFailedError) Error() string {
	return "query execution failed"
}

func (e *ExecutionFailedError) Unwrap() error {
	return e.Err
}
