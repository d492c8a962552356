package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/flowlocal/flowlocal/pkg/machine"
	"github.com/flowlocal/flowlocal/pkg/models"
	"github.com/flowlocal/flowlocal/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	runner    *machine.Runner
	store     store.Store
	validator *validator.Validate
}

func NewAPIHandlers(runner *machine.Runner, st store.Store, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		runner:    runner,
		store:     st,
		validator: validator,
	}
}

// Register mounts every API route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	machines := app.Group("/machines")
	machines.Get("/", h.GetMachines)
	machines.Post("/", h.CreateMachine)
	machines.Get("/:id", h.GetMachine)
	machines.Delete("/:id", h.DeleteMachine)
	machines.Get("/:id/executions", h.GetExecutions)
	machines.Post("/:id/executions", h.StartExecution)

	executions := app.Group("/executions")
	executions.Get("/:id", h.GetExecution)
	executions.Get("/:id/history", h.GetExecutionHistory)
	executions.Post("/:id/stop", h.StopExecution)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetMachines(c fiber.Ctx) error {
	machines, err := h.runner.ListMachines(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"machines":    machines,
		"total_count": len(machines),
	})
}

func (h *APIHandlers) CreateMachine(c fiber.Ctx) error {
	var req CreateMachineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.runner.CreateMachine(c.Context(), req.Name, req.Mode, req.Document)
	if err != nil {
		var machineErr *store.MachineError
		if errors.As(err, &machineErr) {
			return internalError(c, err)
		}

		// Anything else is a bad definition or bad request field.
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetMachine(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Machine ID is required")
	}

	found, err := h.runner.GetMachine(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) DeleteMachine(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Machine ID is required")
	}

	if err := h.runner.DeleteMachine(c.Context(), id); err != nil {
		return handleRunnerError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Machine ID is required")
	}

	req := StartExecutionRequest{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	var (
		exec *models.Execution
		err  error
	)

	// The request's mode overrides the machine's configured default.
	switch req.Mode {
	case models.ModeSync:
		exec, err = h.runner.StartSync(c.Context(), id, req.Input)
	case models.ModeAsync:
		exec, err = h.runner.StartAsync(c.Context(), id, req.Input)
	default:
		exec, err = h.runner.Start(c.Context(), id, req.Input)
	}

	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(exec)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Machine ID is required")
	}

	executions, err := h.runner.ListExecutions(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	exec, err := h.runner.Describe(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) GetExecutionHistory(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	history, err := h.runner.History(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"history":      history,
	})
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.runner.Stop(c.Context(), id); err != nil {
		return handleRunnerError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "flowlocal API is healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "flowlocal API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
