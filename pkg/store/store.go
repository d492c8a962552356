// Package store abstracts durable storage of state machines and finished
// execution records.
package store

import (
	"context"

	"github.com/flowlocal/flowlocal/pkg/models"
)

type Store interface {
	Machines(ctx context.Context) ([]*models.StateMachine, error)
	MachineByID(ctx context.Context, id string) (*models.StateMachine, error)
	SaveMachine(ctx context.Context, machine *models.StateMachine) error
	DeleteMachine(ctx context.Context, id string) error

	Executions(ctx context.Context, machineID string) ([]*models.Execution, error)
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveExecution(ctx context.Context, exec *models.Execution) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
