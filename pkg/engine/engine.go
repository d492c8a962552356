// Package engine walks a validated workflow definition from its start state
// to a terminal state, delegating task invocations to the resource invoker
// and recursing into itself for Parallel branches and Map iterations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flowlocal/flowlocal/pkg/jsonpath"
	"github.com/flowlocal/flowlocal/pkg/otelhelper"
	"github.com/flowlocal/flowlocal/pkg/protocol"
	"github.com/flowlocal/flowlocal/pkg/statelang"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultFailError is the classification recorded for a Fail state that
// does not configure its own error name.
const defaultFailError = "States.Failed"

// History receives state transitions as the walker enters and exits states.
// Branches and iterations of one run share a single History, which must
// therefore be safe for concurrent use.
type History interface {
	Enter(stateName string, attempt int, input any, at time.Time) int
	Exit(token int, output any, errName, cause string, at time.Time)
}

// NopHistory discards transitions. Useful for callers that only need the
// final output.
type NopHistory struct{}

func (NopHistory) Enter(string, int, any, time.Time) int    { return -1 }
func (NopHistory) Exit(int, any, string, string, time.Time) {}

// Engine drives executions. It is stateless across runs and safe to share.
type Engine struct {
	invoker protocol.Invoker
	clock   Clock
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the timer implementation, letting tests run Wait
// states and retry backoff without real sleeps.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func New(invoker protocol.Invoker, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		invoker: invoker,
		clock:   SystemClock,
		logger:  logger,
		tracer:  otel.Tracer("flowlocal/engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes def against input and returns the final output. A Parallel
// branch or Map iteration is just another Run over the nested definition,
// so sub-workflow semantics match top-level semantics by construction.
//
// Workflow failures come back as *protocol.TaskError. Cancellation of ctx
// surfaces as the context's error and always bypasses retry and catch.
func (e *Engine) Run(ctx context.Context, def *statelang.Definition, input any, hist History) (any, error) {
	current := def.StartAt
	carried := input

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, ok := def.States[current]
		if !ok {
			// Unreachable after load-time validation.
			return nil, protocol.NewTaskError(protocol.ErrorRuntime,
				fmt.Sprintf("state %q is not defined", current))
		}

		output, next, err := e.step(ctx, current, state, carried, hist)
		if err != nil {
			return nil, err
		}

		if next == "" {
			return output, nil
		}

		carried, current = output, next
	}
}

// step runs one workflow state to completion, including its retry and catch
// policies. It returns the carried value and the name of the next state, or
// "" when the enclosing definition terminates here.
func (e *Engine) step(ctx context.Context, name string, state *statelang.State, carried any, hist History) (any, string, error) {
	retries := make([]int, len(state.Retry))

	for attempt := 1; ; attempt++ {
		stepCtx, span := e.tracer.Start(ctx, "state "+name, trace.WithAttributes(
			attribute.String(otelhelper.StateNameKey, name),
			attribute.String(otelhelper.StateTypeKey, string(state.Type)),
			attribute.Int(otelhelper.AttemptKey, attempt),
		))

		output, next, serr := e.attempt(stepCtx, name, state, carried, attempt, hist)
		if serr == nil {
			span.End()

			return output, next, nil
		}

		// Cancellation wins over any retry/catch evaluation.
		if ctx.Err() != nil {
			otelhelper.SetError(span, ctx.Err())
			span.End()

			return nil, "", ctx.Err()
		}

		taskErr := protocol.Classify(serr)
		otelhelper.SetError(span, taskErr)
		span.End()

		if !retryable(state.Type) {
			return nil, "", taskErr
		}

		outcome := Decide(taskErr, state.Retry, state.Catch, retries)

		switch outcome.Decision {
		case DecisionRetry:
			retries[outcome.RuleIndex]++
			e.logger.DebugContext(ctx, "Retrying state",
				"state", name, "attempt", attempt, "delay", outcome.Delay, "error", taskErr.Name)

			if err := e.clock.Sleep(ctx, outcome.Delay); err != nil {
				return nil, "", err
			}
		case DecisionCatch:
			envelope := map[string]any{"Error": taskErr.Name, "Cause": taskErr.Cause}

			value, err := jsonpath.Set(carried, pathOrRoot(outcome.Catcher.ResultPath), envelope)
			if err != nil {
				return nil, "", protocol.Classify(err)
			}

			e.logger.DebugContext(ctx, "Caught state error",
				"state", name, "error", taskErr.Name, "target", outcome.Catcher.Next)

			return value, outcome.Catcher.Next, nil
		default:
			return nil, "", taskErr
		}
	}
}

// attempt performs a single invocation of a state: input narrowing,
// dispatch, result merge, output narrowing and history recording.
func (e *Engine) attempt(ctx context.Context, name string, state *statelang.State, carried any, attemptNo int, hist History) (any, string, error) {
	effInput, err := jsonpath.Get(carried, pathOrRoot(state.InputPath))
	if err != nil {
		return nil, "", protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("state %q input path: %s", name, err))
	}

	token := hist.Enter(name, attemptNo, effInput, e.clock.Now())

	result, next, err := e.dispatch(ctx, name, state, effInput, hist)
	if err != nil {
		taskErr := protocol.Classify(err)
		hist.Exit(token, nil, taskErr.Name, taskErr.Cause, e.clock.Now())

		return nil, "", err
	}

	output, err := assemble(state, carried, result)
	if err != nil {
		taskErr := protocol.Classify(err)
		hist.Exit(token, nil, taskErr.Name, taskErr.Cause, e.clock.Now())

		return nil, "", err
	}

	hist.Exit(token, output, "", "", e.clock.Now())

	return output, next, nil
}

// dispatch runs the variant-specific behavior and decides the next state.
// next is state.Next for ordinary states, the matched rule's target for
// Choice, and "" when the definition terminates.
func (e *Engine) dispatch(ctx context.Context, name string, state *statelang.State, effInput any, hist History) (any, string, error) {
	switch state.Type {
	case statelang.StatePass:
		if state.Result != nil {
			return state.Result, state.Next, nil
		}

		return effInput, state.Next, nil

	case statelang.StateTask:
		callInput := effInput

		if state.Parameters != nil {
			resolved, err := resolveTemplate(state.Parameters, effInput)
			if err != nil {
				return nil, "", protocol.NewTaskError(protocol.ErrorRuntime,
					fmt.Sprintf("state %q parameters: %s", name, err))
			}

			callInput = resolved
		}

		output, err := e.invoker.Invoke(ctx, state.Resource, callInput)
		if err != nil {
			return nil, "", err
		}

		return output, state.Next, nil

	case statelang.StateChoice:
		for _, rule := range state.Choices {
			matched, err := rule.Evaluate(effInput)
			if err != nil {
				return nil, "", protocol.NewTaskError(protocol.ErrorRuntime, err.Error())
			}

			if matched {
				return effInput, rule.Next, nil
			}
		}

		if state.Default != "" {
			return effInput, state.Default, nil
		}

		return nil, "", protocol.NewTaskError(protocol.ErrorNoChoiceMatched,
			fmt.Sprintf("no choice rule matched in state %q", name))

	case statelang.StateWait:
		delay, err := e.waitDuration(state, effInput)
		if err != nil {
			return nil, "", err
		}

		if err := e.clock.Sleep(ctx, delay); err != nil {
			return nil, "", err
		}

		return effInput, state.Next, nil

	case statelang.StateParallel:
		output, err := e.runParallel(ctx, state, effInput, hist)
		if err != nil {
			return nil, "", err
		}

		return output, state.Next, nil

	case statelang.StateMap:
		output, err := e.runMap(ctx, state, effInput, hist)
		if err != nil {
			return nil, "", err
		}

		return output, state.Next, nil

	case statelang.StateSucceed:
		return effInput, "", nil

	case statelang.StateFail:
		errName := state.Error
		if errName == "" {
			errName = defaultFailError
		}

		return nil, "", protocol.NewTaskError(errName, state.Cause)

	default:
		return nil, "", protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("state %q has unknown type %q", name, state.Type))
	}
}

// runParallel executes every branch concurrently over its own copy of the
// effective input and assembles outputs in branch-definition order. The
// first failing branch cancels its siblings; its error is what the Parallel
// state's own retry/catch is offered.
func (e *Engine) runParallel(ctx context.Context, state *statelang.State, effInput any, hist History) (any, error) {
	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]any, len(state.Branches))
	errs := make([]error, len(state.Branches))

	var wg sync.WaitGroup

	for i, branch := range state.Branches {
		wg.Add(1)

		go func(i int, branch *statelang.Definition) {
			defer wg.Done()

			output, err := e.Run(branchCtx, branch, jsonpath.DeepCopy(effInput), hist)
			if err != nil {
				errs[i] = err

				cancel()

				return
			}

			results[i] = output
		}(i, branch)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := firstFailure(errs); err != nil {
		return nil, err
	}

	return results, nil
}

// runMap resolves the items array and runs the iterator once per element,
// capped at MaxConcurrency in-flight iterations (zero means unbounded).
// Outputs are assembled in input order regardless of completion order.
func (e *Engine) runMap(ctx context.Context, state *statelang.State, effInput any, hist History) (any, error) {
	value, err := jsonpath.Get(effInput, pathOrRoot(state.ItemsPath))
	if err != nil {
		return nil, protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("map items path %q: %s", pathOrRoot(state.ItemsPath), err))
	}

	items, ok := value.([]any)
	if !ok {
		return nil, protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("map items path %q resolved to %T, not an array", pathOrRoot(state.ItemsPath), value))
	}

	bound := state.MaxConcurrency
	if bound <= 0 || bound > len(items) {
		bound = len(items)
	}

	iterCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]any, len(items))
	errs := make([]error, len(items))
	semaphore := make(chan struct{}, max(bound, 1))

	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)

		go func(i int, item any) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-iterCtx.Done():
				errs[i] = iterCtx.Err()

				return
			}
			defer func() { <-semaphore }()

			output, err := e.Run(iterCtx, state.Iterator, jsonpath.DeepCopy(item), hist)
			if err != nil {
				errs[i] = err

				cancel()

				return
			}

			results[i] = output
		}(i, item)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := firstFailure(errs); err != nil {
		return nil, err
	}

	return results, nil
}

func (e *Engine) waitDuration(state *statelang.State, effInput any) (time.Duration, error) {
	switch {
	case state.Seconds != nil:
		return time.Duration(*state.Seconds * float64(time.Second)), nil

	case state.SecondsPath != nil:
		value, err := jsonpath.Get(effInput, *state.SecondsPath)
		if err != nil {
			return 0, protocol.NewTaskError(protocol.ErrorRuntime,
				fmt.Sprintf("wait seconds path %q: %s", *state.SecondsPath, err))
		}

		seconds, ok := value.(float64)
		if !ok {
			return 0, protocol.NewTaskError(protocol.ErrorRuntime,
				fmt.Sprintf("wait seconds path %q resolved to %T, not a number", *state.SecondsPath, value))
		}

		return time.Duration(seconds * float64(time.Second)), nil

	case state.Timestamp != nil:
		return e.untilTimestamp(*state.Timestamp)

	case state.TimestampPath != nil:
		value, err := jsonpath.Get(effInput, *state.TimestampPath)
		if err != nil {
			return 0, protocol.NewTaskError(protocol.ErrorRuntime,
				fmt.Sprintf("wait timestamp path %q: %s", *state.TimestampPath, err))
		}

		timestamp, ok := value.(string)
		if !ok {
			return 0, protocol.NewTaskError(protocol.ErrorRuntime,
				fmt.Sprintf("wait timestamp path %q resolved to %T, not a string", *state.TimestampPath, value))
		}

		return e.untilTimestamp(timestamp)

	default:
		// Unreachable after load-time validation.
		return 0, protocol.NewTaskError(protocol.ErrorRuntime, "wait state has no duration")
	}
}

func (e *Engine) untilTimestamp(timestamp string) (time.Duration, error) {
	at, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return 0, protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("invalid wait timestamp %q: %s", timestamp, err))
	}

	return at.Sub(e.clock.Now()), nil
}

// assemble merges the state's raw result into the carried value at
// ResultPath, then narrows it through OutputPath. Wait, Choice and Succeed
// states pass their effective input through untouched by ResultPath.
func assemble(state *statelang.State, carried, result any) (any, error) {
	value := result

	switch state.Type {
	case statelang.StateTask, statelang.StateParallel, statelang.StateMap, statelang.StatePass:
		merged, err := jsonpath.Set(carried, pathOrRoot(state.ResultPath), result)
		if err != nil {
			return nil, fmt.Errorf("result path: %w", err)
		}

		value = merged
	}

	output, err := jsonpath.Get(value, pathOrRoot(state.OutputPath))
	if err != nil {
		return nil, fmt.Errorf("output path: %w", err)
	}

	return output, nil
}

// resolveTemplate builds a Task's call input from its Parameters template.
// Keys ending in the payload suffix are resolved as paths against the
// effective input; everything else is carried literally, recursing through
// nested objects and arrays.
func resolveTemplate(template map[string]any, input any) (map[string]any, error) {
	out := make(map[string]any, len(template))

	for key, value := range template {
		if strings.HasSuffix(key, statelang.PayloadSuffix) {
			path, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q must be a path string, got %T", key, value)
			}

			resolved, err := jsonpath.Get(input, path)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", key, err)
			}

			out[strings.TrimSuffix(key, statelang.PayloadSuffix)] = resolved

			continue
		}

		switch nested := value.(type) {
		case map[string]any:
			resolved, err := resolveTemplate(nested, input)
			if err != nil {
				return nil, err
			}

			out[key] = resolved
		case []any:
			arr := make([]any, len(nested))

			for i, item := range nested {
				if m, ok := item.(map[string]any); ok {
					resolved, err := resolveTemplate(m, input)
					if err != nil {
						return nil, err
					}

					arr[i] = resolved

					continue
				}

				arr[i] = item
			}

			out[key] = arr
		default:
			out[key] = value
		}
	}

	return out, nil
}

// retryable limits retry/catch policies to the state types that own them;
// Choice mismatches and Fail states always propagate.
func retryable(t statelang.StateType) bool {
	return t == statelang.StateTask || t == statelang.StateParallel || t == statelang.StateMap
}

// firstFailure returns the first real error in branch order, skipping the
// context errors of siblings cancelled after another branch failed.
func firstFailure(errs []error) error {
	var fallback error

	for _, err := range errs {
		if err == nil {
			continue
		}

		var taskErr *protocol.TaskError
		if errors.As(err, &taskErr) {
			return err
		}

		if fallback == nil {
			fallback = err
		}
	}

	if fallback != nil {
		return protocol.Classify(fallback)
	}

	return nil
}

func pathOrRoot(path *string) string {
	if path == nil {
		return "$"
	}

	return *path
}
