// Package web exposes the emulator's REST API: machine management,
// execution control and status queries.
package web

import "github.com/flowlocal/flowlocal/pkg/models"

// CreateMachineRequest is the request body for registering a state machine.
type CreateMachineRequest struct {
	Name     string         `json:"name"           validate:"required,min=1"`
	Mode     models.Mode    `json:"mode,omitempty" validate:"omitempty,oneof=sync async"`
	Document map[string]any `json:"document"       validate:"required"`
}

// StartExecutionRequest is the request body for starting an execution. Mode
// overrides the machine's configured default for this run only.
type StartExecutionRequest struct {
	Input any         `json:"input,omitempty"`
	Mode  models.Mode `json:"mode,omitempty" validate:"omitempty,oneof=sync async"`
}
