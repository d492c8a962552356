// Package registry resolves task resource identifiers to their handlers.
// The identifier segment before the first ':' names the handler kind; the
// full identifier is handed to the handler so it can carry parameters,
// e.g. "http:https://api.example.com/charge".
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/flowlocal/flowlocal/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.HandlerFactory

	mu       sync.Mutex
	handlers map[string]protocol.Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.HandlerFactory),
		handlers:  make(map[string]protocol.Handler),
	}
}

func (r *Registry) Register(factory protocol.HandlerFactory) {
	r.factories[factory.ID()] = factory
}

// Kinds returns the registered handler kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

// Invoke implements protocol.Invoker. Handlers are created lazily on first
// use and reused afterwards, so they must be safe for concurrent calls.
func (r *Registry) Invoke(ctx context.Context, resource string, input any) (any, error) {
	kind := resource
	if i := strings.Index(resource, ":"); i >= 0 {
		kind = resource[:i]
	}

	handler, err := r.handlerFor(kind)
	if err != nil {
		return nil, protocol.NewTaskError(protocol.ErrorRuntime, err.Error())
	}

	return handler.Handle(ctx, resource, input)
}

func (r *Registry) handlerFor(kind string) (protocol.Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handler, ok := r.handlers[kind]; ok {
		return handler, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("resource kind %q not registered", kind)
	}

	handler, err := factory.Create(r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating %q handler: %w", kind, err)
	}

	r.handlers[kind] = handler

	return handler, nil
}
