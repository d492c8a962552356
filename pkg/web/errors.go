package web

import (
	"errors"

	"github.com/flowlocal/flowlocal/pkg/machine"
	"github.com/flowlocal/flowlocal/pkg/store"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleRunnerError maps runner and store failures onto problem responses.
func handleRunnerError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrMachineNotFound):
		return notFound(c, "State machine not found")

	case errors.Is(err, store.ErrExecutionNotFound),
		errors.Is(err, machine.ErrExecutionNotFound):
		return notFound(c, "Execution not found")

	default:
		return internalError(c, err)
	}
}
