package protocol

import (
	"context"
	"errors"
	"fmt"
)

// Built-in error classifications. ErrorAll matches every error in retry and
// catch rules; ErrorTimeout is raised by invokers whose task exceeded its
// time budget.
const (
	ErrorAll        = "States.ALL"
	ErrorTimeout    = "States.Timeout"
	ErrorTaskFailed = "States.TaskFailed"

	// ErrorNoChoiceMatched is raised when a Choice state has no matching
	// rule and no default target.
	ErrorNoChoiceMatched = "States.NoChoiceMatched"

	// ErrorRuntime covers internal invariant violations surfaced during a
	// run, such as a state name missing after validation.
	ErrorRuntime = "States.Runtime"
)

// TaskError carries the stable classification name retry/catch rules match
// on, plus a human-readable cause.
type TaskError struct {
	Name  string `json:"error"`
	Cause string `json:"cause,omitempty"`
	Err   error  `json:"-"`
}

func (e *TaskError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Cause)
	}

	return e.Name
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error carries the built-in timeout
// classification.
func (e *TaskError) Timeout() bool {
	return e.Name == ErrorTimeout
}

// NewTaskError builds a classified error.
func NewTaskError(name, cause string) *TaskError {
	return &TaskError{Name: name, Cause: cause}
}

// NewTimeoutError builds an error with the built-in timeout classification.
func NewTimeoutError(cause string) *TaskError {
	return &TaskError{Name: ErrorTimeout, Cause: cause}
}

// Classify returns err as a TaskError, wrapping unclassified errors under
// the generic task-failed name. Context deadline errors map to the timeout
// classification so invokers relying on context deadlines classify
// correctly without extra plumbing.
func Classify(err error) *TaskError {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TaskError{Name: ErrorTimeout, Cause: err.Error(), Err: err}
	}

	return &TaskError{Name: ErrorTaskFailed, Cause: err.Error(), Err: err}
}
