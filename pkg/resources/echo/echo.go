// Package echo provides the simplest task resource: it returns its input
// payload unchanged. Useful for smoke tests and for workflows whose data
// flow is shaped entirely by paths and parameters.
package echo

import (
	"context"
	"log/slog"

	"github.com/flowlocal/flowlocal/pkg/protocol"
)

type Handler struct {
	logger *slog.Logger
}

func (h *Handler) Handle(ctx context.Context, resource string, input any) (any, error) {
	h.logger.DebugContext(ctx, "Echoing task input", "resource", resource)

	return input, nil
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "echo"
}

func (*Factory) Create(logger *slog.Logger) (protocol.Handler, error) {
	return &Handler{logger: logger.With("module", "echo_resource")}, nil
}
