// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/flowlocal/flowlocal/pkg/registry"
	"github.com/flowlocal/flowlocal/pkg/resources/echo"
	"github.com/flowlocal/flowlocal/pkg/resources/failtask"
	"github.com/flowlocal/flowlocal/pkg/resources/httptask"
)

func registerNativeResources(reg *registry.Registry) {
	reg.Register(echo.NewFactory())
	reg.Register(httptask.NewFactory())
	reg.Register(failtask.NewFactory())
}

// NewRegistry returns a resource registry with the native handlers registered.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeResources(reg)

	return reg
}
