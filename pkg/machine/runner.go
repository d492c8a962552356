// Package machine hosts registered state machines and their executions:
// creating machines from raw documents, starting runs in sync or async
// mode, stopping them, and answering status and history queries.
package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowlocal/flowlocal/pkg/engine"
	"github.com/flowlocal/flowlocal/pkg/eventbus"
	"github.com/flowlocal/flowlocal/pkg/events"
	"github.com/flowlocal/flowlocal/pkg/execution"
	"github.com/flowlocal/flowlocal/pkg/models"
	"github.com/flowlocal/flowlocal/pkg/protocol"
	"github.com/flowlocal/flowlocal/pkg/statelang"
	"github.com/flowlocal/flowlocal/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrExecutionNotFound indicates the execution is neither live nor stored.
var ErrExecutionNotFound = errors.New("execution not found")

// Runner coordinates the pieces of one emulator instance. Execution state
// lives in the tracker while a run is in flight and is written through to
// the store once it reaches a terminal status.
type Runner struct {
	logger    *slog.Logger
	store     store.Store
	bus       eventbus.EventBus
	engine    *engine.Engine
	tracker   *execution.Tracker
	validator *validator.Validate

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(logger *slog.Logger, st store.Store, bus eventbus.EventBus, eng *engine.Engine) *Runner {
	return &Runner{
		logger:    logger.With("module", "machine_runner"),
		store:     st,
		bus:       bus,
		engine:    eng,
		tracker:   execution.NewTracker(),
		validator: validator.New(),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// CreateMachine validates and registers a machine from its raw document.
func (r *Runner) CreateMachine(ctx context.Context, name string, mode models.Mode, document map[string]any) (*models.StateMachine, error) {
	def, err := statelang.Load(document)
	if err != nil {
		return nil, err
	}

	if mode == "" {
		mode = models.ModeAsync
	}

	if mode != models.ModeAsync && mode != models.ModeSync {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}

	machine := &models.StateMachine{
		ID:         uuid.New().String(),
		Name:       name,
		Mode:       mode,
		Document:   document,
		Definition: def,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.validator.Struct(machine); err != nil {
		return nil, fmt.Errorf("invalid machine: %w", err)
	}

	if err := r.store.SaveMachine(ctx, machine); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Machine created", "machine_id", machine.ID, "name", name, "mode", mode)

	r.publish(ctx, machine.ID, events.MachineCreated{
		BaseEvent: r.baseEvent(events.MachineCreatedEvent, machine.ID),
		Name:      name,
		Mode:      string(mode),
	})

	return machine, nil
}

func (r *Runner) GetMachine(ctx context.Context, id string) (*models.StateMachine, error) {
	return r.store.MachineByID(ctx, id)
}

func (r *Runner) ListMachines(ctx context.Context) ([]*models.StateMachine, error) {
	return r.store.Machines(ctx)
}

func (r *Runner) DeleteMachine(ctx context.Context, id string) error {
	if err := r.store.DeleteMachine(ctx, id); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Machine deleted", "machine_id", id)

	r.publish(ctx, id, events.MachineDeleted{
		BaseEvent: r.baseEvent(events.MachineDeletedEvent, id),
	})

	return nil
}

// Start begins an execution honoring the machine's configured mode: sync
// machines block until the run is terminal, async machines return the
// RUNNING record immediately.
func (r *Runner) Start(ctx context.Context, machineID string, input any) (*models.Execution, error) {
	machine, err := r.store.MachineByID(ctx, machineID)
	if err != nil {
		return nil, err
	}

	return r.startAndWait(ctx, machine, input, machine.Mode == models.ModeSync)
}

// StartAsync begins an execution and returns its RUNNING record.
func (r *Runner) StartAsync(ctx context.Context, machineID string, input any) (*models.Execution, error) {
	machine, err := r.store.MachineByID(ctx, machineID)
	if err != nil {
		return nil, err
	}

	return r.startAndWait(ctx, machine, input, false)
}

// StartSync begins an execution and blocks until it reaches a terminal
// status, returning the final record.
func (r *Runner) StartSync(ctx context.Context, machineID string, input any) (*models.Execution, error) {
	machine, err := r.store.MachineByID(ctx, machineID)
	if err != nil {
		return nil, err
	}

	return r.startAndWait(ctx, machine, input, true)
}

func (r *Runner) startAndWait(ctx context.Context, machine *models.StateMachine, input any, wait bool) (*models.Execution, error) {
	exec := &models.Execution{
		ID:        uuid.New().String(),
		MachineID: machine.ID,
		Status:    models.ExecutionRunning,
		Input:     input,
		StartedAt: time.Now().UTC(),
	}

	if err := r.tracker.Add(exec); err != nil {
		return nil, err
	}

	// The run outlives the caller's request context; only Stop cancels it.
	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancels[exec.ID] = cancel
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Execution started",
		"machine_id", machine.ID, "execution_id", exec.ID, "sync", wait)

	r.publish(ctx, machine.ID, events.ExecutionStarted{
		BaseEvent:   r.baseEvent(events.ExecutionStartedEvent, machine.ID),
		ExecutionID: exec.ID,
		Input:       input,
	})

	done := make(chan struct{})

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer close(done)
		defer cancel()

		hist := newStateEvents(r.tracker.Recorder(exec.ID), r, machine.ID, exec.ID)

		output, err := r.engine.Run(runCtx, machine.Definition, input, hist)
		r.finish(machine.ID, exec.ID, exec.StartedAt, output, err)
	}()

	if wait {
		select {
		case <-done:
		case <-ctx.Done():
			// The caller gave up; the run keeps going like an async start.
		}
	}

	return r.Describe(ctx, exec.ID)
}

// finish maps the run's outcome onto a terminal status, persists the final
// record and publishes the matching lifecycle event.
func (r *Runner) finish(machineID, execID string, startedAt time.Time, output any, runErr error) {
	status, errName, cause := terminalStatus(runErr)
	at := time.Now().UTC()
	duration := at.Sub(startedAt)

	if err := r.tracker.Finish(execID, status, output, errName, cause, at); err != nil {
		r.logger.Error("Failed to finalize execution", "execution_id", execID, "error", err)
	}

	r.mu.Lock()
	delete(r.cancels, execID)
	r.mu.Unlock()

	ctx := context.Background()

	if snapshot, err := r.tracker.Snapshot(execID); err == nil {
		if err := r.store.SaveExecution(ctx, snapshot); err != nil {
			r.logger.Error("Failed to persist execution record", "execution_id", execID, "error", err)
		} else {
			r.tracker.Remove(execID)
		}
	}

	r.logger.Info("Execution finished",
		"machine_id", machineID, "execution_id", execID, "status", status, "duration", duration)

	base := r.baseEvent("", machineID)

	switch status {
	case models.ExecutionSucceeded:
		base.Type = events.ExecutionSucceededEvent
		r.publish(ctx, machineID, events.ExecutionSucceeded{
			BaseEvent: base, ExecutionID: execID, Output: output, Duration: duration,
		})
	case models.ExecutionAborted:
		base.Type = events.ExecutionAbortedEvent
		r.publish(ctx, machineID, events.ExecutionAborted{
			BaseEvent: base, ExecutionID: execID, Duration: duration,
		})
	case models.ExecutionTimedOut:
		base.Type = events.ExecutionTimedOutEvent
		r.publish(ctx, machineID, events.ExecutionTimedOut{
			BaseEvent: base, ExecutionID: execID, Cause: cause, Duration: duration,
		})
	default:
		base.Type = events.ExecutionFailedEvent
		r.publish(ctx, machineID, events.ExecutionFailed{
			BaseEvent: base, ExecutionID: execID, Error: errName, Cause: cause, Duration: duration,
		})
	}
}

// Stop cancels a running execution. Stopping an execution that already
// reached a terminal status is a no-op.
func (r *Runner) Stop(ctx context.Context, execID string) error {
	r.mu.Lock()
	cancel, running := r.cancels[execID]
	r.mu.Unlock()

	if running {
		r.logger.InfoContext(ctx, "Stopping execution", "execution_id", execID)
		cancel()

		return nil
	}

	exec, err := r.Describe(ctx, execID)
	if err != nil {
		return err
	}

	if exec.Status.Terminal() {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrExecutionNotFound, execID)
}

// Describe returns a point-in-time view of the execution: the live record
// while it runs, the stored record afterwards.
func (r *Runner) Describe(ctx context.Context, execID string) (*models.Execution, error) {
	snapshot, err := r.tracker.Snapshot(execID)
	if err == nil {
		return snapshot, nil
	}

	exec, err := r.store.ExecutionByID(ctx, execID)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, execID)
		}

		return nil, err
	}

	return exec, nil
}

// History returns the execution's state transitions in entry order.
func (r *Runner) History(ctx context.Context, execID string) ([]models.StateTransition, error) {
	exec, err := r.Describe(ctx, execID)
	if err != nil {
		return nil, err
	}

	return exec.History, nil
}

// ListExecutions returns the stored execution records of one machine.
func (r *Runner) ListExecutions(ctx context.Context, machineID string) ([]*models.Execution, error) {
	return r.store.Executions(ctx, machineID)
}

// Shutdown cancels every running execution and waits for their terminal
// records to be persisted.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	finished := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) baseEvent(eventType events.EventType, machineID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        r.bus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		MachineID: machineID,
	}
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := r.bus.Publish(ctx, key, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// terminalStatus maps a run error onto the execution's terminal status.
func terminalStatus(runErr error) (models.ExecutionStatus, string, string) {
	if runErr == nil {
		return models.ExecutionSucceeded, "", ""
	}

	if errors.Is(runErr, context.Canceled) {
		return models.ExecutionAborted, "", ""
	}

	taskErr := protocol.Classify(runErr)
	if taskErr.Timeout() {
		return models.ExecutionTimedOut, taskErr.Name, taskErr.Cause
	}

	return models.ExecutionFailed, taskErr.Name, taskErr.Cause
}
