package models

import (
	"time"

	"github.com/flowlocal/flowlocal/pkg/jsonpath"
)

// ExecutionStatus is the walker's own lifecycle. An execution moves from
// RUNNING to exactly one terminal status, once.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionTimedOut  ExecutionStatus = "TIMED_OUT"
	ExecutionAborted   ExecutionStatus = "ABORTED"
)

// Terminal reports whether the status is one of the four end states.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionRunning && s != ""
}

// Execution is the mutable record of one run. While the run is live its
// engine loop is the only writer; everyone else reads deep-copied snapshots
// handed out by the tracker.
type Execution struct {
	ID        string            `json:"id"`
	MachineID string            `json:"machine_id"`
	Status    ExecutionStatus   `json:"status"`
	Input     any               `json:"input"`
	Output    any               `json:"output,omitempty"`
	ErrorName string            `json:"error,omitempty"`
	Cause     string            `json:"cause,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	StoppedAt *time.Time        `json:"stopped_at,omitempty"`
	History   []StateTransition `json:"history,omitempty"`
}

// StateTransition records one pass through one workflow state. Retried
// states appear as repeated transitions with increasing Attempt markers.
type StateTransition struct {
	StateName string     `json:"state_name"`
	Attempt   int        `json:"attempt"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	Input     any        `json:"input,omitempty"`
	Output    any        `json:"output,omitempty"`
	ErrorName string     `json:"error,omitempty"`
	Cause     string     `json:"cause,omitempty"`
}

// Clone returns a deep copy sharing no mutable data with the original.
func (e *Execution) Clone() *Execution {
	out := *e
	out.Input = jsonpath.DeepCopy(e.Input)
	out.Output = jsonpath.DeepCopy(e.Output)

	if e.StoppedAt != nil {
		stopped := *e.StoppedAt
		out.StoppedAt = &stopped
	}

	out.History = make([]StateTransition, len(e.History))
	for i, tr := range e.History {
		out.History[i] = tr
		out.History[i].Input = jsonpath.DeepCopy(tr.Input)
		out.History[i].Output = jsonpath.DeepCopy(tr.Output)

		if tr.ExitedAt != nil {
			exited := *tr.ExitedAt
			out.History[i].ExitedAt = &exited
		}
	}

	return &out
}
