// Package redis stores machines and execution records in Redis. Machines
// live in one hash; execution records live in a hash with a per-machine
// sorted-set index ordered by start time.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowlocal/flowlocal/pkg/models"
	"github.com/flowlocal/flowlocal/pkg/statelang"
	"github.com/flowlocal/flowlocal/pkg/store"
	redis "github.com/redis/go-redis/v9"
)

const (
	machinesKey   = "flowlocal:machines"
	executionsKey = "flowlocal:executions"

	machineExecutionsKeyPrefix = "flowlocal:machine_executions:"
)

type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewStore(logger *slog.Logger, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return &Store{
		client: redis.NewClient(opts),
		logger: logger.With("module", "redis_store"),
	}, nil
}

func (s *Store) Machines(ctx context.Context) ([]*models.StateMachine, error) {
	raw, err := s.client.HGetAll(ctx, machinesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}

	machines := make([]*models.StateMachine, 0, len(raw))

	for id, payload := range raw {
		machine, err := decodeMachine([]byte(payload))
		if err != nil {
			return nil, store.NewMachineError("Machines", id, err)
		}

		machines = append(machines, machine)
	}

	return machines, nil
}

func (s *Store) MachineByID(ctx context.Context, id string) (*models.StateMachine, error) {
	payload, err := s.client.HGet(ctx, machinesKey, id).Bytes()
	if err == redis.Nil {
		return nil, store.NewMachineError("MachineByID", id, store.ErrMachineNotFound)
	}

	if err != nil {
		return nil, store.NewMachineError("MachineByID", id, err)
	}

	machine, err := decodeMachine(payload)
	if err != nil {
		return nil, store.NewMachineError("MachineByID", id, err)
	}

	return machine, nil
}

func (s *Store) SaveMachine(ctx context.Context, machine *models.StateMachine) error {
	payload, err := json.Marshal(machine)
	if err != nil {
		return store.NewMachineError("SaveMachine", machine.ID, err)
	}

	if err := s.client.HSet(ctx, machinesKey, machine.ID, payload).Err(); err != nil {
		return store.NewMachineError("SaveMachine", machine.ID, err)
	}

	return nil
}

func (s *Store) DeleteMachine(ctx context.Context, id string) error {
	removed, err := s.client.HDel(ctx, machinesKey, id).Result()
	if err != nil {
		return store.NewMachineError("DeleteMachine", id, err)
	}

	if removed == 0 {
		return store.NewMachineError("DeleteMachine", id, store.ErrMachineNotFound)
	}

	indexKey := machineExecutionsKeyPrefix + id

	execIDs, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return store.NewMachineError("DeleteMachine", id, err)
	}

	if len(execIDs) > 0 {
		if err := s.client.HDel(ctx, executionsKey, execIDs...).Err(); err != nil {
			return store.NewMachineError("DeleteMachine", id, err)
		}
	}

	if err := s.client.Del(ctx, indexKey).Err(); err != nil {
		return store.NewMachineError("DeleteMachine", id, err)
	}

	return nil
}

func (s *Store) Executions(ctx context.Context, machineID string) ([]*models.Execution, error) {
	execIDs, err := s.client.ZRange(ctx, machineExecutionsKeyPrefix+machineID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing executions of machine %s: %w", machineID, err)
	}

	executions := make([]*models.Execution, 0, len(execIDs))

	for _, execID := range execIDs {
		exec, err := s.ExecutionByID(ctx, execID)
		if err != nil {
			return nil, err
		}

		executions = append(executions, exec)
	}

	return executions, nil
}

func (s *Store) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	payload, err := s.client.HGet(ctx, executionsKey, id).Bytes()
	if err == redis.Nil {
		return nil, store.NewExecutionError("ExecutionByID", id, store.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, store.NewExecutionError("ExecutionByID", id, err)
	}

	var exec models.Execution
	if err := json.Unmarshal(payload, &exec); err != nil {
		return nil, store.NewExecutionError("ExecutionByID", id, err)
	}

	return &exec, nil
}

func (s *Store) SaveExecution(ctx context.Context, exec *models.Execution) error {
	payload, err := json.Marshal(exec)
	if err != nil {
		return store.NewExecutionError("SaveExecution", exec.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, executionsKey, exec.ID, payload)
	pipe.ZAdd(ctx, machineExecutionsKeyPrefix+exec.MachineID, redis.Z{
		Score:  float64(exec.StartedAt.UnixNano()),
		Member: exec.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return store.NewExecutionError("SaveExecution", exec.ID, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

// decodeMachine rebuilds the runnable definition, which is deliberately
// left out of the stored JSON.
func decodeMachine(payload []byte) (*models.StateMachine, error) {
	var machine models.StateMachine
	if err := json.Unmarshal(payload, &machine); err != nil {
		return nil, err
	}

	def, err := statelang.Load(machine.Document)
	if err != nil {
		return nil, fmt.Errorf("reloading stored definition: %w", err)
	}

	machine.Definition = def

	return &machine, nil
}
