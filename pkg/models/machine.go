// Package models defines the core domain records of the emulator: state
// machines, executions and their history.
package models

import (
	"time"

	"github.com/flowlocal/flowlocal/pkg/jsonpath"
	"github.com/flowlocal/flowlocal/pkg/statelang"
)

// Mode selects how callers start executions on a machine by default:
// blocking until the run completes, or returning an id to poll.
type Mode string

const (
	ModeAsync Mode = "async"
	ModeSync  Mode = "sync"
)

// StateMachine pairs a validated definition with the metadata callers
// address it by. The Definition is immutable once loaded and shared
// read-only across concurrent executions.
type StateMachine struct {
	ID         string                `json:"id"`
	Name       string                `json:"name" validate:"required,min=1"`
	Mode       Mode                  `json:"mode"`
	Document   map[string]any        `json:"document" validate:"required"`
	Definition *statelang.Definition `json:"-"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Clone returns a copy with its own Document. The Definition pointer is
// shared, it is never mutated after loading.
func (m *StateMachine) Clone() *StateMachine {
	out := *m

	if doc, ok := jsonpath.DeepCopy(m.Document).(map[string]any); ok {
		out.Document = doc
	}

	return &out
}
