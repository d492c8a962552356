// Package events defines the lifecycle notifications published while state
// machines and their executions change.
package events

import (
	"time"
)

type EventType string

// Topic carries every lifecycle event.
const Topic = "flowlocal.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Machine registry events.
	MachineCreatedEvent EventType = "machine.created"
	MachineDeletedEvent EventType = "machine.deleted"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionSucceededEvent EventType = "execution.succeeded"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionAbortedEvent   EventType = "execution.aborted"
	ExecutionTimedOutEvent  EventType = "execution.timed_out"

	// Per-state transition events.
	StateEnteredEvent EventType = "state.entered"
	StateExitedEvent  EventType = "state.exited"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	MachineID string         `json:"machine_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type MachineCreated struct {
	BaseEvent

	Name string `json:"name"`
	Mode string `json:"mode"`
}

func (m MachineCreated) GetType() EventType {
	return MachineCreatedEvent
}

type MachineDeleted struct {
	BaseEvent
}

func (m MachineDeleted) GetType() EventType {
	return MachineDeletedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Input       any    `json:"input,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionSucceeded struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Output      any           `json:"output,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionSucceeded) GetType() EventType {
	return ExecutionSucceededEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Cause       string        `json:"cause,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionAborted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionAborted) GetType() EventType {
	return ExecutionAbortedEvent
}

type ExecutionTimedOut struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Cause       string        `json:"cause,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionTimedOut) GetType() EventType {
	return ExecutionTimedOutEvent
}

type StateEntered struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StateName   string `json:"state_name"`
	Attempt     int    `json:"attempt"`
	Input       any    `json:"input,omitempty"`
}

func (s StateEntered) GetType() EventType {
	return StateEnteredEvent
}

type StateExited struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StateName   string `json:"state_name"`
	Output      any    `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s StateExited) GetType() EventType {
	return StateExitedEvent
}
