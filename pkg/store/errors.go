package store

import (
	"errors"
	"fmt"
)

// Sentinel errors every implementation maps its backend failures onto.
var (
	// ErrMachineNotFound indicates no state machine exists for the identifier.
	ErrMachineNotFound = errors.New("state machine not found")

	// ErrMachineAlreadyExists indicates an id collision on save.
	ErrMachineAlreadyExists = errors.New("state machine already exists")

	// ErrExecutionNotFound indicates no stored execution record for the identifier.
	ErrExecutionNotFound = errors.New("execution not found")
)

// MachineError wraps a machine operation failure with its context.
type MachineError struct {
	Op        string
	MachineID string
	Err       error
}

func (e *MachineError) Error() string {
	return fmt.Sprintf("%s failed for machine %s: %v", e.Op, e.MachineID, e.Err)
}

func (e *MachineError) Unwrap() error {
	return e.Err
}

func (e *MachineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewMachineError(op, machineID string, err error) *MachineError {
	return &MachineError{Op: op, MachineID: machineID, Err: err}
}

// ExecutionError wraps an execution operation failure with its context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}
