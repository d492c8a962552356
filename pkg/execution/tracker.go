// Package execution tracks live runs: status, append-only state transition
// history and terminal results, with read-safe snapshots for status queries.
package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowlocal/flowlocal/pkg/jsonpath"
	"github.com/flowlocal/flowlocal/pkg/models"
)

// ErrExecutionNotFound indicates no live execution with the given id.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrAlreadyTerminal indicates a second terminal transition was attempted.
var ErrAlreadyTerminal = errors.New("execution already terminal")

// Tracker owns the mutable view of in-flight executions. The engine loop of
// each run is the only writer for that run; readers only ever receive deep
// copies, so a status query can never observe a half-written transition.
type Tracker struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
}

func NewTracker() *Tracker {
	return &Tracker{
		executions: make(map[string]*models.Execution),
	}
}

// Add registers a freshly created execution record.
func (t *Tracker) Add(exec *models.Execution) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.executions[exec.ID]; ok {
		return fmt.Errorf("execution %s already tracked", exec.ID)
	}

	t.executions[exec.ID] = exec

	return nil
}

// Snapshot returns a point-in-time deep copy of the execution.
func (t *Tracker) Snapshot(id string) (*models.Execution, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	exec, ok := t.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	return exec.Clone(), nil
}

// History returns a copy of the execution's transitions in entry order.
func (t *Tracker) History(id string) ([]models.StateTransition, error) {
	snapshot, err := t.Snapshot(id)
	if err != nil {
		return nil, err
	}

	return snapshot.History, nil
}

// Finish moves the execution to a terminal status, exactly once.
func (t *Tracker) Finish(id string, status models.ExecutionStatus, output any, errName, cause string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	exec, ok := t.executions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	if exec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, exec.Status)
	}

	exec.Status = status
	exec.StoppedAt = &at

	if status == models.ExecutionSucceeded {
		exec.Output = output
	} else {
		exec.ErrorName = errName
		exec.Cause = cause
	}

	return nil
}

// Remove forgets a tracked execution. The host calls this after the record
// has been persisted or is past retention.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.executions, id)
}

// Recorder returns the history sink for one execution. Transitions from
// parallel branches and map iterations of the same run land in the same
// history, serialized by the tracker's lock in state entry order.
func (t *Tracker) Recorder(id string) *Recorder {
	return &Recorder{tracker: t, id: id}
}

// Recorder appends state transitions for a single execution.
type Recorder struct {
	tracker *Tracker
	id      string
}

// Enter appends a transition at state entry and returns its index, used to
// complete the same entry on exit.
func (r *Recorder) Enter(stateName string, attempt int, input any, at time.Time) int {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	exec, ok := r.tracker.executions[r.id]
	if !ok {
		return -1
	}

	exec.History = append(exec.History, models.StateTransition{
		StateName: stateName,
		Attempt:   attempt,
		EnteredAt: at,
		Input:     jsonpath.DeepCopy(input),
	})

	return len(exec.History) - 1
}

// Exit completes the transition opened by Enter with the state's output
// snapshot, or its classified error.
func (r *Recorder) Exit(token int, output any, errName, cause string, at time.Time) {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	exec, ok := r.tracker.executions[r.id]
	if !ok || token < 0 || token >= len(exec.History) {
		return
	}

	transition := &exec.History[token]
	transition.ExitedAt = &at
	transition.Output = jsonpath.DeepCopy(output)
	transition.ErrorName = errName
	transition.Cause = cause
}
