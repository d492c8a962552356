package engine

import (
	"math"
	"time"

	"github.com/flowlocal/flowlocal/pkg/protocol"
	"github.com/flowlocal/flowlocal/pkg/statelang"
)

// Decision is the outcome of offering a classified error to a state's retry
// and catch rules.
type Decision int

const (
	// DecisionPropagate fails the execution (or the enclosing branch).
	DecisionPropagate Decision = iota
	// DecisionRetry re-attempts the state after Delay.
	DecisionRetry
	// DecisionCatch jumps to the catcher's target with the error envelope.
	DecisionCatch
)

// Outcome carries the selected decision plus the data the engine needs to
// act on it.
type Outcome struct {
	Decision  Decision
	Delay     time.Duration
	RuleIndex int
	Catcher   *statelang.Catcher
}

// Decide offers err first to the retry rules, then to the catch rules, in
// document order, and returns the first applicable outcome. retriesByRule
// holds the number of retries each rule has already granted during this
// state invocation; a rule whose total attempts (retries plus the initial
// one) would exceed its MaxAttempts is exhausted and falls through to catch.
func Decide(err *protocol.TaskError, retriers []*statelang.Retrier, catchers []*statelang.Catcher, retriesByRule []int) Outcome {
	for i, retrier := range retriers {
		if !matches(retrier.ErrorEquals, err.Name) {
			continue
		}

		if retriesByRule[i]+1 >= retrier.Attempts() {
			break
		}

		return Outcome{
			Decision:  DecisionRetry,
			Delay:     backoffDelay(retrier, retriesByRule[i]),
			RuleIndex: i,
		}
	}

	for _, catcher := range catchers {
		if matches(catcher.ErrorEquals, err.Name) {
			return Outcome{Decision: DecisionCatch, Catcher: catcher}
		}
	}

	return Outcome{Decision: DecisionPropagate}
}

// backoffDelay computes interval * backoffRate^retriesSoFar in float64
// seconds and truncates to a time.Duration.
func backoffDelay(retrier *statelang.Retrier, retriesSoFar int) time.Duration {
	seconds := retrier.Interval() * math.Pow(retrier.Backoff(), float64(retriesSoFar))

	return time.Duration(seconds * float64(time.Second))
}

// matches reports whether any pattern names the error. Both "*" and the
// built-in States.ALL act as the match-everything wildcard.
func matches(patterns []string, errName string) bool {
	for _, pattern := range patterns {
		if pattern == "*" || pattern == protocol.ErrorAll || pattern == errName {
			return true
		}
	}

	return false
}
