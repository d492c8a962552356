package machine

import (
	"context"
	"sync"
	"time"

	"github.com/flowlocal/flowlocal/pkg/engine"
	"github.com/flowlocal/flowlocal/pkg/events"
)

// stateEvents decorates a history sink with state.entered/state.exited
// notifications on the runner's event bus.
type stateEvents struct {
	inner     engine.History
	runner    *Runner
	machineID string
	execID    string

	mu    sync.Mutex
	names map[int]string
}

func newStateEvents(inner engine.History, runner *Runner, machineID, execID string) *stateEvents {
	return &stateEvents{
		inner:     inner,
		runner:    runner,
		machineID: machineID,
		execID:    execID,
		names:     make(map[int]string),
	}
}

func (s *stateEvents) Enter(stateName string, attempt int, input any, at time.Time) int {
	token := s.inner.Enter(stateName, attempt, input, at)

	s.mu.Lock()
	s.names[token] = stateName
	s.mu.Unlock()

	s.runner.publish(context.Background(), s.machineID, events.StateEntered{
		BaseEvent:   s.runner.baseEvent(events.StateEnteredEvent, s.machineID),
		ExecutionID: s.execID,
		StateName:   stateName,
		Attempt:     attempt,
		Input:       input,
	})

	return token
}

func (s *stateEvents) Exit(token int, output any, errName, cause string, at time.Time) {
	s.inner.Exit(token, output, errName, cause, at)

	s.mu.Lock()
	stateName := s.names[token]
	delete(s.names, token)
	s.mu.Unlock()

	s.runner.publish(context.Background(), s.machineID, events.StateExited{
		BaseEvent:   s.runner.baseEvent(events.StateExitedEvent, s.machineID),
		ExecutionID: s.execID,
		StateName:   stateName,
		Output:      output,
		Error:       errName,
	})
}
