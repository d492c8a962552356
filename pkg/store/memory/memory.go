// Package memory keeps machines and execution records in process memory.
// It is the default backend for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/flowlocal/flowlocal/pkg/models"
	"github.com/flowlocal/flowlocal/pkg/store"
)

type Store struct {
	mu         sync.RWMutex
	machines   map[string]*models.StateMachine
	executions map[string]*models.Execution
}

func NewStore() *Store {
	return &Store{
		machines:   make(map[string]*models.StateMachine),
		executions: make(map[string]*models.Execution),
	}
}

func (s *Store) Machines(_ context.Context) ([]*models.StateMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	machines := make([]*models.StateMachine, 0, len(s.machines))
	for _, machine := range s.machines {
		machines = append(machines, machine.Clone())
	}

	sort.Slice(machines, func(i, j int) bool {
		return machines[i].CreatedAt.Before(machines[j].CreatedAt)
	})

	return machines, nil
}

func (s *Store) MachineByID(_ context.Context, id string) (*models.StateMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	machine, ok := s.machines[id]
	if !ok {
		return nil, store.NewMachineError("MachineByID", id, store.ErrMachineNotFound)
	}

	return machine.Clone(), nil
}

func (s *Store) SaveMachine(_ context.Context, machine *models.StateMachine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.machines[machine.ID] = machine.Clone()

	return nil
}

func (s *Store) DeleteMachine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.machines[id]; !ok {
		return store.NewMachineError("DeleteMachine", id, store.ErrMachineNotFound)
	}

	delete(s.machines, id)

	for execID, exec := range s.executions {
		if exec.MachineID == id {
			delete(s.executions, execID)
		}
	}

	return nil
}

func (s *Store) Executions(_ context.Context, machineID string) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]*models.Execution, 0)

	for _, exec := range s.executions {
		if exec.MachineID == machineID {
			executions = append(executions, exec.Clone())
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}

func (s *Store) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, store.NewExecutionError("ExecutionByID", id, store.ErrExecutionNotFound)
	}

	return exec.Clone(), nil
}

func (s *Store) SaveExecution(_ context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.ID] = exec.Clone()

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
