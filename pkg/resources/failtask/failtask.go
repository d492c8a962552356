// Package failtask always fails with the classification carried in its
// resource identifier, e.g. "fail:PaymentDeclined:card expired". It exists
// to exercise retry and catch policies in demos and tests.
package failtask

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flowlocal/flowlocal/pkg/protocol"
)

type Handler struct {
	logger *slog.Logger
}

func (h *Handler) Handle(ctx context.Context, resource string, _ any) (any, error) {
	name := protocol.ErrorTaskFailed
	cause := ""

	parts := strings.SplitN(resource, ":", 3)
	if len(parts) > 1 && parts[1] != "" {
		name = parts[1]
	}

	if len(parts) > 2 {
		cause = parts[2]
	}

	h.logger.DebugContext(ctx, "Raising configured task failure", "error", name)

	return nil, protocol.NewTaskError(name, cause)
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "fail"
}

func (*Factory) Create(logger *slog.Logger) (protocol.Handler, error) {
	return &Handler{logger: logger.With("module", "fail_resource")}, nil
}
