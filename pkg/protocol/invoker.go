// Package protocol defines the contracts between the execution engine and
// the pluggable resource handlers that Task states invoke.
package protocol

import (
	"context"
	"log/slog"
)

// Invoker turns a Task state's resource identifier plus its resolved input
// payload into an output payload. Failures must be classified TaskErrors so
// retry and catch policies can match on the error name; the engine wraps
// anything else under the generic task-failed classification.
type Invoker interface {
	Invoke(ctx context.Context, resource string, input any) (any, error)
}

// Handler executes one kind of task resource. The full resource identifier
// is passed through so handlers can carry configuration in it (for example
// "http:POST:https://example.test/hook").
type Handler interface {
	Handle(ctx context.Context, resource string, input any) (any, error)
}

// HandlerFactory creates handlers for one resource kind. ID returns the
// identifier prefix the registry dispatches on.
type HandlerFactory interface {
	ID() string
	Create(logger *slog.Logger) (Handler, error)
}
