package statelang

import (
	"errors"
	"fmt"
)

// Validation error kinds. Each structural defect in a definition document
// maps onto one of these sentinels so callers can branch on the failure
// class rather than parse messages.
var (
	// ErrInvalidDocument indicates the raw document failed schema screening.
	ErrInvalidDocument = errors.New("definition document is invalid")

	// ErrNoStates indicates the document declares no states.
	ErrNoStates = errors.New("definition has no states")

	// ErrMissingStartAt indicates the document has no start state.
	ErrMissingStartAt = errors.New("definition has no start state")

	// ErrUnknownState indicates a Next, Default, Catch or start target that
	// does not key into the state map.
	ErrUnknownState = errors.New("transition to unknown state")

	// ErrMissingTransition indicates a non-terminal state with neither Next
	// nor End.
	ErrMissingTransition = errors.New("state has neither next nor end")

	// ErrInvalidStateType indicates an unrecognized state Type.
	ErrInvalidStateType = errors.New("unknown state type")

	// ErrMissingResource indicates a Task state without a resource.
	ErrMissingResource = errors.New("task state has no resource")

	// ErrNoBranches indicates a Parallel state without branches.
	ErrNoBranches = errors.New("parallel state has no branches")

	// ErrMissingIterator indicates a Map state without an iterator.
	ErrMissingIterator = errors.New("map state has no iterator")

	// ErrNoChoices indicates a Choice state without rules.
	ErrNoChoices = errors.New("choice state has no rules")

	// ErrMissingWaitDuration indicates a Wait state with none of the four
	// duration forms configured.
	ErrMissingWaitDuration = errors.New("wait state has no duration")

	// ErrConflictingTransition indicates a state carrying both Next and End.
	ErrConflictingTransition = errors.New("state has both next and end")
)

// ValidationError reports where in the definition a structural check failed.
type ValidationError struct {
	StateName string
	Field     string
	Message   string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.StateName != "" {
		return fmt.Sprintf("state %q: %s", e.StateName, e.Message)
	}

	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(stateName, field, message string, err error) *ValidationError {
	return &ValidationError{
		StateName: stateName,
		Field:     field,
		Message:   message,
		Err:       err,
	}
}
