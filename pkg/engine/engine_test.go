package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowlocal/flowlocal/pkg/engine"
	"github.com/flowlocal/flowlocal/pkg/protocol"
	"github.com/flowlocal/flowlocal/pkg/statelang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invokerFunc func(ctx context.Context, resource string, input any) (any, error)

func (f invokerFunc) Invoke(ctx context.Context, resource string, input any) (any, error) {
	return f(ctx, resource, input)
}

// echoInvoker returns the task input unchanged for every resource.
var echoInvoker = invokerFunc(func(_ context.Context, _ string, input any) (any, error) {
	return input, nil
})

type historyEntry struct {
	state   string
	attempt int
	errName string
	exited  bool
}

// memHistory is a concurrency-safe in-memory History for assertions.
type memHistory struct {
	mu      sync.Mutex
	entries []historyEntry
}

func (h *memHistory) Enter(stateName string, attempt int, _ any, _ time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, historyEntry{state: stateName, attempt: attempt})

	return len(h.entries) - 1
}

func (h *memHistory) Exit(token int, _ any, errName, _ string, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if token < 0 || token >= len(h.entries) {
		return
	}

	h.entries[token].errName = errName
	h.entries[token].exited = true
}

func (h *memHistory) count(stateName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0

	for _, e := range h.entries {
		if e.state == stateName {
			n++
		}
	}

	return n
}

// fakeClock records sleeps instead of performing them.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEngine(invoker protocol.Invoker, opts ...engine.Option) *engine.Engine {
	return engine.New(invoker, testLogger(), opts...)
}

func load(t *testing.T, doc map[string]any) *statelang.Definition {
	t.Helper()

	def, err := statelang.Load(doc)
	require.NoError(t, err)

	return def
}

func TestRun_LinearTaskPassSucceed(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Work",
		"States": map[string]any{
			"Work": map[string]any{
				"Type":       "Task",
				"Resource":   "echo",
				"ResultPath": "$.result",
				"Next":       "Shape",
			},
			"Shape": map[string]any{
				"Type":       "Pass",
				"OutputPath": "$.result",
				"Next":       "Done",
			},
			"Done": map[string]any{"Type": "Succeed"},
		},
	})

	eng := newEngine(echoInvoker)

	output, err := eng.Run(context.Background(), def, map[string]any{"x": 10.0}, engine.NopHistory{})
	require.NoError(t, err)

	// The task result lands at $.result, Pass narrows to it.
	assert.Equal(t, map[string]any{"x": 10.0}, output)
}

func TestRun_NoPathsOutputEqualsRawResult(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Work",
		"States": map[string]any{
			"Work": map[string]any{"Type": "Task", "Resource": "answer", "End": true},
		},
	})

	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return map[string]any{"answer": 42.0}, nil
	}))

	output, err := eng.Run(context.Background(), def, map[string]any{"ignored": true}, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": 42.0}, output)
}

func TestRun_TaskParametersTemplate(t *testing.T) {
	var captured any

	def := load(t, map[string]any{
		"StartAt": "Call",
		"States": map[string]any{
			"Call": map[string]any{
				"Type":     "Task",
				"Resource": "capture",
				"Parameters": map[string]any{
					"static": "value",
					"user.$": "$.profile.name",
					"nested": map[string]any{
						"score.$": "$.profile.score",
					},
				},
				"End": true,
			},
		},
	})

	eng := newEngine(invokerFunc(func(_ context.Context, _ string, input any) (any, error) {
		captured = input

		return input, nil
	}))

	input := map[string]any{
		"profile": map[string]any{"name": "ada", "score": 7.0},
	}

	_, err := eng.Run(context.Background(), def, input, engine.NopHistory{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"static": "value",
		"user":   "ada",
		"nested": map[string]any{"score": 7.0},
	}, captured)
}

func choiceScenario(t *testing.T, withDefault bool) *statelang.Definition {
	t.Helper()

	choice := map[string]any{
		"Type": "Choice",
		"Choices": []any{
			map[string]any{"Variable": "$.x", "NumericGreaterThan": 5.0, "Next": "Big"},
		},
	}
	if withDefault {
		choice["Default"] = "Small"
	}

	return load(t, map[string]any{
		"StartAt": "Gate",
		"States": map[string]any{
			"Gate":  choice,
			"Big":   map[string]any{"Type": "Succeed"},
			"Small": map[string]any{"Type": "Fail", "Error": "TooSmall", "Cause": "x below threshold"},
		},
	})
}

func TestRun_ChoiceMatchingRule(t *testing.T) {
	eng := newEngine(echoInvoker)
	hist := &memHistory{}

	output, err := eng.Run(context.Background(), choiceScenario(t, true), map[string]any{"x": 10.0}, hist)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 10.0}, output)
	assert.Equal(t, 1, hist.count("Big"))
}

func TestRun_ChoiceDefaultTaken(t *testing.T) {
	eng := newEngine(echoInvoker)
	hist := &memHistory{}

	_, err := eng.Run(context.Background(), choiceScenario(t, true), map[string]any{"x": 1.0}, hist)
	require.Error(t, err)

	var taskErr *protocol.TaskError

	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "TooSmall", taskErr.Name)
	assert.Equal(t, 1, hist.count("Small"))
}

func TestRun_ChoiceNoMatchWithoutDefault(t *testing.T) {
	eng := newEngine(echoInvoker)

	_, err := eng.Run(context.Background(), choiceScenario(t, false), map[string]any{"x": 1.0}, engine.NopHistory{})
	require.Error(t, err)

	var taskErr *protocol.TaskError

	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, protocol.ErrorNoChoiceMatched, taskErr.Name)
}

func TestRun_RetryExhaustionRecordsEachAttempt(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Flaky",
		"States": map[string]any{
			"Flaky": map[string]any{
				"Type":     "Task",
				"Resource": "boom",
				"Retry": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "MaxAttempts": 2, "IntervalSeconds": 0},
				},
				"End": true,
			},
		},
	})

	calls := 0
	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		calls++

		return nil, protocol.NewTaskError("BoomError", "always fails")
	}), engine.WithClock(newFakeClock()))

	hist := &memHistory{}

	_, err := eng.Run(context.Background(), def, nil, hist)
	require.Error(t, err)

	var taskErr *protocol.TaskError

	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "BoomError", taskErr.Name)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, hist.count("Flaky"))
}

func TestRun_RetryBackoffDelaysIncrease(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Flaky",
		"States": map[string]any{
			"Flaky": map[string]any{
				"Type":     "Task",
				"Resource": "boom",
				"Retry": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "MaxAttempts": 4, "IntervalSeconds": 1, "BackoffRate": 2},
				},
				"End": true,
			},
		},
	})

	clock := newFakeClock()
	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return nil, protocol.NewTaskError("BoomError", "")
	}), engine.WithClock(clock))

	_, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.Error(t, err)

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.sleeps)
}

func TestRun_RetryEventuallySucceeds(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Flaky",
		"States": map[string]any{
			"Flaky": map[string]any{
				"Type":     "Task",
				"Resource": "flaky",
				"Retry": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "MaxAttempts": 5, "IntervalSeconds": 0},
				},
				"End": true,
			},
		},
	})

	calls := 0
	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		calls++
		if calls < 3 {
			return nil, protocol.NewTaskError("Transient", "")
		}

		return "recovered", nil
	}), engine.WithClock(newFakeClock()))

	hist := &memHistory{}

	output, err := eng.Run(context.Background(), def, nil, hist)
	require.NoError(t, err)
	assert.Equal(t, "recovered", output)
	assert.Equal(t, 3, hist.count("Flaky"))
}

func TestRun_CatchJumpsToFallbackWithEnvelope(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Risky",
		"States": map[string]any{
			"Risky": map[string]any{
				"Type":     "Task",
				"Resource": "boom",
				"Catch": []any{
					map[string]any{
						"ErrorEquals": []any{"States.ALL"},
						"Next":        "Recover",
						"ResultPath":  "$.failure",
					},
				},
				"End": true,
			},
			"Recover": map[string]any{"Type": "Pass", "End": true},
		},
	})

	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return nil, protocol.NewTaskError("CustomError", "it broke")
	}))

	output, err := eng.Run(context.Background(), def, map[string]any{"keep": true}, engine.NopHistory{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"keep": true,
		"failure": map[string]any{
			"Error": "CustomError",
			"Cause": "it broke",
		},
	}, output)
}

func TestRun_CatchDefaultResultPathReplacesValue(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Risky",
		"States": map[string]any{
			"Risky": map[string]any{
				"Type":     "Task",
				"Resource": "boom",
				"Catch": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "Next": "Recover"},
				},
				"End": true,
			},
			"Recover": map[string]any{"Type": "Pass", "End": true},
		},
	})

	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return nil, protocol.NewTimeoutError("deadline passed")
	}))

	output, err := eng.Run(context.Background(), def, map[string]any{"gone": true}, engine.NopHistory{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"Error": protocol.ErrorTimeout,
		"Cause": "deadline passed",
	}, output)
}

func TestRun_ParallelResultsInBranchOrder(t *testing.T) {
	// Branch 0 completes last; the output array must still lead with it.
	def := load(t, map[string]any{
		"StartAt": "Fan",
		"States": map[string]any{
			"Fan": map[string]any{
				"Type": "Parallel",
				"Branches": []any{
					map[string]any{
						"StartAt": "Slow",
						"States": map[string]any{
							"Slow": map[string]any{"Type": "Task", "Resource": "slow", "End": true},
						},
					},
					map[string]any{
						"StartAt": "B1",
						"States": map[string]any{
							"B1": map[string]any{"Type": "Pass", "Result": 1, "End": true},
						},
					},
					map[string]any{
						"StartAt": "B2",
						"States": map[string]any{
							"B2": map[string]any{"Type": "Pass", "Result": 2, "End": true},
						},
					},
				},
				"End": true,
			},
		},
	})

	eng := newEngine(invokerFunc(func(ctx context.Context, _ string, _ any) (any, error) {
		select {
		case <-time.After(30 * time.Millisecond):
			return 0.0, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	output, err := eng.Run(context.Background(), def, map[string]any{}, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 1.0, 2.0}, output)
}

func TestRun_ParallelBranchFailureCancelsSiblings(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Fan",
		"States": map[string]any{
			"Fan": map[string]any{
				"Type": "Parallel",
				"Branches": []any{
					map[string]any{
						"StartAt": "Doomed",
						"States": map[string]any{
							"Doomed": map[string]any{"Type": "Task", "Resource": "boom", "End": true},
						},
					},
					map[string]any{
						"StartAt": "Stuck",
						"States": map[string]any{
							"Stuck": map[string]any{"Type": "Task", "Resource": "block", "End": true},
						},
					},
				},
				"End": true,
			},
		},
	})

	eng := newEngine(invokerFunc(func(ctx context.Context, resource string, _ any) (any, error) {
		if resource == "boom" {
			return nil, protocol.NewTaskError("BranchBoom", "branch zero failed")
		}

		// Blocks until the sibling's failure cancels this branch.
		<-ctx.Done()

		return nil, ctx.Err()
	}))

	start := time.Now()

	_, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.Error(t, err)

	var taskErr *protocol.TaskError

	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "BranchBoom", taskErr.Name)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_ParallelFailureCaughtByOwnCatch(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Fan",
		"States": map[string]any{
			"Fan": map[string]any{
				"Type": "Parallel",
				"Branches": []any{
					map[string]any{
						"StartAt": "Doomed",
						"States": map[string]any{
							"Doomed": map[string]any{"Type": "Task", "Resource": "boom", "End": true},
						},
					},
				},
				"Catch": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "Next": "Recover"},
				},
				"End": true,
			},
			"Recover": map[string]any{"Type": "Pass", "Result": "fallback", "End": true},
		},
	})

	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return nil, protocol.NewTaskError("BranchBoom", "")
	}))

	output, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", output)
}

func mapDefinition(maxConcurrency int) map[string]any {
	return map[string]any{
		"StartAt": "Each",
		"States": map[string]any{
			"Each": map[string]any{
				"Type":           "Map",
				"ItemsPath":      "$.items",
				"MaxConcurrency": maxConcurrency,
				"Iterator": map[string]any{
					"StartAt": "Double",
					"States": map[string]any{
						"Double": map[string]any{"Type": "Task", "Resource": "double", "End": true},
					},
				},
				"End": true,
			},
		},
	}
}

func TestRun_MapOutputsInInputOrder(t *testing.T) {
	def := load(t, mapDefinition(0))

	eng := newEngine(invokerFunc(func(_ context.Context, _ string, input any) (any, error) {
		n := input.(float64)

		// Later items finish earlier.
		time.Sleep(time.Duration(50-int(n)*10) * time.Millisecond)

		return n * 2, nil
	}))

	input := map[string]any{"items": []any{0.0, 1.0, 2.0, 3.0}}

	output, err := eng.Run(context.Background(), def, input, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 2.0, 4.0, 6.0}, output)
}

func TestRun_MapConcurrencyIsHardCap(t *testing.T) {
	def := load(t, mapDefinition(2))

	var inFlight, observedMax atomic.Int64

	eng := newEngine(invokerFunc(func(_ context.Context, _ string, input any) (any, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			maxSoFar := observedMax.Load()
			if current <= maxSoFar || observedMax.CompareAndSwap(maxSoFar, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)

		return input, nil
	}))

	input := map[string]any{"items": []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0}}

	_, err := eng.Run(context.Background(), def, input, engine.NopHistory{})
	require.NoError(t, err)
	assert.LessOrEqual(t, observedMax.Load(), int64(2))
}

func TestRun_MapItemsPathMustBeArray(t *testing.T) {
	def := load(t, mapDefinition(0))

	eng := newEngine(echoInvoker)

	_, err := eng.Run(context.Background(), def, map[string]any{"items": "nope"}, engine.NopHistory{})
	require.Error(t, err)

	var taskErr *protocol.TaskError

	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, protocol.ErrorRuntime, taskErr.Name)
}

func TestRun_WaitSecondsPathUsesClock(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Hold",
		"States": map[string]any{
			"Hold": map[string]any{"Type": "Wait", "SecondsPath": "$.delay", "Next": "Done"},
			"Done": map[string]any{"Type": "Succeed"},
		},
	})

	clock := newFakeClock()
	eng := newEngine(echoInvoker, engine.WithClock(clock))

	output, err := eng.Run(context.Background(), def, map[string]any{"delay": 5.0}, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"delay": 5.0}, output)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
}

func TestRun_WaitFixedSeconds(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Hold",
		"States": map[string]any{
			"Hold": map[string]any{"Type": "Wait", "Seconds": 3, "Next": "Done"},
			"Done": map[string]any{"Type": "Succeed"},
		},
	})

	clock := newFakeClock()
	eng := newEngine(echoInvoker, engine.WithClock(clock))

	_, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, clock.sleeps)
}

func TestRun_WaitTimestampSleepsUntilInstant(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Hold",
		"States": map[string]any{
			"Hold": map[string]any{"Type": "Wait", "Timestamp": "2024-01-01T00:00:30Z", "Next": "Done"},
			"Done": map[string]any{"Type": "Succeed"},
		},
	})

	clock := newFakeClock()
	eng := newEngine(echoInvoker, engine.WithClock(clock))

	_, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.sleeps)
}

func TestRun_WaitTimestampPathResolvesFromInput(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Hold",
		"States": map[string]any{
			"Hold": map[string]any{"Type": "Wait", "TimestampPath": "$.until", "Next": "Done"},
			"Done": map[string]any{"Type": "Succeed"},
		},
	})

	clock := newFakeClock()
	eng := newEngine(echoInvoker, engine.WithClock(clock))

	input := map[string]any{"until": "2024-01-01T01:00:00Z"}

	output, err := eng.Run(context.Background(), def, input, engine.NopHistory{})
	require.NoError(t, err)
	assert.Equal(t, input, output)
	assert.Equal(t, []time.Duration{time.Hour}, clock.sleeps)
}

func TestRun_WaitTimestampInPastDoesNotSleep(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Hold",
		"States": map[string]any{
			"Hold": map[string]any{"Type": "Wait", "Timestamp": "2023-12-31T23:00:00Z", "Next": "Done"},
			"Done": map[string]any{"Type": "Succeed"},
		},
	})

	clock := newFakeClock()
	eng := newEngine(echoInvoker, engine.WithClock(clock))

	_, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.NoError(t, err)
	assert.Empty(t, clock.sleeps)
}

func TestRun_WaitMalformedTimestampFailsAsRuntime(t *testing.T) {
	tests := []struct {
		name  string
		state map[string]any
		input any
	}{
		{
			name:  "literal timestamp not RFC3339",
			state: map[string]any{"Type": "Wait", "Timestamp": "next tuesday", "Next": "Done"},
		},
		{
			name:  "timestamp path resolves to non-string",
			state: map[string]any{"Type": "Wait", "TimestampPath": "$.until", "Next": "Done"},
			input: map[string]any{"until": 42.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := load(t, map[string]any{
				"StartAt": "Hold",
				"States": map[string]any{
					"Hold": tt.state,
					"Done": map[string]any{"Type": "Succeed"},
				},
			})

			clock := newFakeClock()
			eng := newEngine(echoInvoker, engine.WithClock(clock))

			_, err := eng.Run(context.Background(), def, tt.input, engine.NopHistory{})

			var taskErr *protocol.TaskError

			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, protocol.ErrorRuntime, taskErr.Name)
			assert.Empty(t, clock.sleeps)
		})
	}
}

func TestRun_CancellationInterruptsTask(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Stuck",
		"States": map[string]any{
			"Stuck": map[string]any{
				"Type":     "Task",
				"Resource": "block",
				"Retry": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "MaxAttempts": 99},
				},
				"End": true,
			},
		},
	})

	eng := newEngine(invokerFunc(func(ctx context.Context, _ string, _ any) (any, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := eng.Run(ctx, def, nil, engine.NopHistory{})

	// Cancellation bypasses the configured retry policy.
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CancellationInterruptsBackoff(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Flaky",
		"States": map[string]any{
			"Flaky": map[string]any{
				"Type":     "Task",
				"Resource": "boom",
				"Retry": []any{
					map[string]any{"ErrorEquals": []any{"*"}, "MaxAttempts": 5, "IntervalSeconds": 3600},
				},
				"End": true,
			},
		},
	})

	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return nil, protocol.NewTaskError("Transient", "")
	}))

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()

	_, err := eng.Run(ctx, def, nil, engine.NopHistory{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_UnclassifiedErrorGetsTaskFailedName(t *testing.T) {
	def := load(t, map[string]any{
		"StartAt": "Work",
		"States": map[string]any{
			"Work": map[string]any{"Type": "Task", "Resource": "plain", "End": true},
		},
	})

	eng := newEngine(invokerFunc(func(context.Context, string, any) (any, error) {
		return nil, errors.New("plain failure")
	}))

	_, err := eng.Run(context.Background(), def, nil, engine.NopHistory{})
	require.Error(t, err)

	var taskErr *protocol.TaskError

	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, protocol.ErrorTaskFailed, taskErr.Name)
	assert.Equal(t, "plain failure", taskErr.Cause)
}
