// Package statelang models parsed workflow definitions: a JSON document
// naming states, transitions, branching, error policies and nested
// sub-workflows, loaded once per machine and shared read-only across runs.
package statelang

// StateType tags the closed set of state variants.
type StateType string

const (
	StateTask     StateType = "Task"
	StateChoice   StateType = "Choice"
	StateWait     StateType = "Wait"
	StatePass     StateType = "Pass"
	StateSucceed  StateType = "Succeed"
	StateFail     StateType = "Fail"
	StateParallel StateType = "Parallel"
	StateMap      StateType = "Map"
)

// PayloadSuffix marks Parameters template keys whose values are resolved as
// paths against the state's effective input instead of taken literally.
const PayloadSuffix = ".$"

// Definition is an immutable, validated workflow definition. Parallel
// branches and Map iterators hold complete nested Definitions, so one run of
// the engine over a branch is indistinguishable from a top-level run.
type Definition struct {
	Comment string            `json:"Comment,omitempty"`
	StartAt string            `json:"StartAt"`
	States  map[string]*State `json:"States"`
}

// State is a tagged union over the eight state variants. Fields that do not
// apply to a variant stay zero-valued; the loader rejects documents whose
// variant-specific requirements are not met.
type State struct {
	Type    StateType `json:"Type"`
	Comment string    `json:"Comment,omitempty"`

	Next string `json:"Next,omitempty"`
	End  bool   `json:"End,omitempty"`

	InputPath  *string        `json:"InputPath,omitempty"`
	OutputPath *string        `json:"OutputPath,omitempty"`
	ResultPath *string        `json:"ResultPath,omitempty"`
	Parameters map[string]any `json:"Parameters,omitempty"`

	// Pass
	Result any `json:"Result,omitempty"`

	// Task
	Resource string `json:"Resource,omitempty"`

	// Choice
	Choices []*ChoiceRule `json:"Choices,omitempty"`
	Default string        `json:"Default,omitempty"`

	// Wait
	Seconds       *float64 `json:"Seconds,omitempty"`
	SecondsPath   *string  `json:"SecondsPath,omitempty"`
	Timestamp     *string  `json:"Timestamp,omitempty"`
	TimestampPath *string  `json:"TimestampPath,omitempty"`

	// Parallel
	Branches []*Definition `json:"Branches,omitempty"`

	// Map
	Iterator       *Definition `json:"Iterator,omitempty"`
	ItemsPath      *string     `json:"ItemsPath,omitempty"`
	MaxConcurrency int         `json:"MaxConcurrency,omitempty"`

	Retry []*Retrier `json:"Retry,omitempty"`
	Catch []*Catcher `json:"Catch,omitempty"`

	// Fail
	Error string `json:"Error,omitempty"`
	Cause string `json:"Cause,omitempty"`
}

// Terminal reports whether the state ends its enclosing definition on its
// own: Succeed and Fail never carry a Next.
func (s *State) Terminal() bool {
	return s.Type == StateSucceed || s.Type == StateFail
}

// Retrier is one retry rule. Attempts are counted per state entry;
// MaxAttempts bounds the total number of invocations, so MaxAttempts 1
// means a single attempt and no retries.
type Retrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds *float64 `json:"IntervalSeconds,omitempty"`
	MaxAttempts     *int     `json:"MaxAttempts,omitempty"`
	BackoffRate     *float64 `json:"BackoffRate,omitempty"`
}

const (
	defaultIntervalSeconds = 1.0
	defaultMaxAttempts     = 3
	defaultBackoffRate     = 2.0
)

// Interval returns the configured base delay in seconds, defaulting to 1.
func (r *Retrier) Interval() float64 {
	if r.IntervalSeconds == nil {
		return defaultIntervalSeconds
	}

	return *r.IntervalSeconds
}

// Attempts returns the configured attempt ceiling, defaulting to 3.
func (r *Retrier) Attempts() int {
	if r.MaxAttempts == nil {
		return defaultMaxAttempts
	}

	return *r.MaxAttempts
}

// Backoff returns the configured backoff multiplier, defaulting to 2.
func (r *Retrier) Backoff() float64 {
	if r.BackoffRate == nil {
		return defaultBackoffRate
	}

	return *r.BackoffRate
}

// Catcher is one catch rule: on a matching error the run jumps to Next with
// the error envelope merged at ResultPath (nil replaces the whole value).
type Catcher struct {
	ErrorEquals []string `json:"ErrorEquals"`
	Next        string   `json:"Next"`
	ResultPath  *string  `json:"ResultPath,omitempty"`
}
