package statelang

import (
	"errors"
	"fmt"

	"github.com/flowlocal/flowlocal/pkg/jsonpath"
)

// ChoiceRule is one comparison in a Choice state, or a boolean composition
// of sub-rules. Top-level rules carry the Next target; nested rules inside
// And/Or/Not do not.
type ChoiceRule struct {
	Variable string `json:"Variable,omitempty"`

	StringEquals             *string  `json:"StringEquals,omitempty"`
	StringLessThan           *string  `json:"StringLessThan,omitempty"`
	StringGreaterThan        *string  `json:"StringGreaterThan,omitempty"`
	NumericEquals            *float64 `json:"NumericEquals,omitempty"`
	NumericLessThan          *float64 `json:"NumericLessThan,omitempty"`
	NumericGreaterThan       *float64 `json:"NumericGreaterThan,omitempty"`
	NumericLessThanEquals    *float64 `json:"NumericLessThanEquals,omitempty"`
	NumericGreaterThanEquals *float64 `json:"NumericGreaterThanEquals,omitempty"`
	BooleanEquals            *bool    `json:"BooleanEquals,omitempty"`
	IsPresent                *bool    `json:"IsPresent,omitempty"`
	IsNull                   *bool    `json:"IsNull,omitempty"`

	And []*ChoiceRule `json:"And,omitempty"`
	Or  []*ChoiceRule `json:"Or,omitempty"`
	Not *ChoiceRule   `json:"Not,omitempty"`

	Next string `json:"Next,omitempty"`
}

// Evaluate resolves the rule against the state's effective input. A missing
// variable satisfies only IsPresent false; every other comparison against an
// absent value is false rather than an error, which lets Default handle the
// fallthrough.
func (r *ChoiceRule) Evaluate(input any) (bool, error) {
	switch {
	case len(r.And) > 0:
		for _, sub := range r.And {
			ok, err := sub.Evaluate(input)
			if err != nil || !ok {
				return false, err
			}
		}

		return true, nil
	case len(r.Or) > 0:
		for _, sub := range r.Or {
			ok, err := sub.Evaluate(input)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}

		return false, nil
	case r.Not != nil:
		ok, err := r.Not.Evaluate(input)
		if err != nil {
			return false, err
		}

		return !ok, nil
	}

	value, err := jsonpath.Get(input, r.Variable)
	present := err == nil

	if err != nil && !errors.Is(err, jsonpath.ErrNotFound) {
		return false, fmt.Errorf("choice variable %q: %w", r.Variable, err)
	}

	if r.IsPresent != nil {
		return present == *r.IsPresent, nil
	}

	if !present {
		return false, nil
	}

	if r.IsNull != nil {
		return (value == nil) == *r.IsNull, nil
	}

	return r.compare(value), nil
}

func (r *ChoiceRule) compare(value any) bool {
	switch {
	case r.StringEquals != nil:
		s, ok := value.(string)

		return ok && s == *r.StringEquals
	case r.StringLessThan != nil:
		s, ok := value.(string)

		return ok && s < *r.StringLessThan
	case r.StringGreaterThan != nil:
		s, ok := value.(string)

		return ok && s > *r.StringGreaterThan
	case r.NumericEquals != nil:
		n, ok := asNumber(value)

		return ok && n == *r.NumericEquals
	case r.NumericLessThan != nil:
		n, ok := asNumber(value)

		return ok && n < *r.NumericLessThan
	case r.NumericGreaterThan != nil:
		n, ok := asNumber(value)

		return ok && n > *r.NumericGreaterThan
	case r.NumericLessThanEquals != nil:
		n, ok := asNumber(value)

		return ok && n <= *r.NumericLessThanEquals
	case r.NumericGreaterThanEquals != nil:
		n, ok := asNumber(value)

		return ok && n >= *r.NumericGreaterThanEquals
	case r.BooleanEquals != nil:
		b, ok := value.(bool)

		return ok && b == *r.BooleanEquals
	default:
		return false
	}
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
