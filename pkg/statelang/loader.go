package statelang

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Load builds a validated Definition from an already-parsed JSON document.
// Loading is pure and deterministic: the same document always yields a
// structurally identical Definition or the same error, and the returned
// Definition shares no memory with the input.
func Load(doc map[string]any) (*Definition, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return LoadJSON(raw)
}

// LoadJSON builds a validated Definition from a raw JSON document. The
// document is first screened against the definition schema, then decoded
// and checked for referential integrity.
func LoadJSON(raw []byte) (*Definition, error) {
	if err := checkSchema(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if err := validate(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

func validate(def *Definition) error {
	if len(def.States) == 0 {
		return newValidationError("", "States", "definition declares no states", ErrNoStates)
	}

	if def.StartAt == "" {
		return newValidationError("", "StartAt", "definition has no start state", ErrMissingStartAt)
	}

	if _, ok := def.States[def.StartAt]; !ok {
		return newValidationError("", "StartAt",
			fmt.Sprintf("start state %q is not defined", def.StartAt), ErrUnknownState)
	}

	// States are checked in name order so a document with several invalid
	// states always reports the same one.
	for _, name := range slices.Sorted(maps.Keys(def.States)) {
		if err := validateState(def, name, def.States[name]); err != nil {
			return err
		}
	}

	return nil
}

func validateState(def *Definition, name string, state *State) error {
	switch state.Type {
	case StateTask, StateChoice, StateWait, StatePass, StateSucceed, StateFail, StateParallel, StateMap:
	default:
		return newValidationError(name, "Type",
			fmt.Sprintf("unknown state type %q", state.Type), ErrInvalidStateType)
	}

	if err := validateTransition(def, name, state); err != nil {
		return err
	}

	for i, catcher := range state.Catch {
		if _, ok := def.States[catcher.Next]; !ok {
			return newValidationError(name, fmt.Sprintf("Catch[%d].Next", i),
				fmt.Sprintf("catch target %q is not defined", catcher.Next), ErrUnknownState)
		}
	}

	switch state.Type {
	case StateTask:
		if state.Resource == "" {
			return newValidationError(name, "Resource", "task state has no resource", ErrMissingResource)
		}
	case StateChoice:
		return validateChoice(def, name, state)
	case StateWait:
		if state.Seconds == nil && state.SecondsPath == nil &&
			state.Timestamp == nil && state.TimestampPath == nil {
			return newValidationError(name, "Seconds", "wait state has no duration", ErrMissingWaitDuration)
		}
	case StateParallel:
		if len(state.Branches) == 0 {
			return newValidationError(name, "Branches", "parallel state has no branches", ErrNoBranches)
		}

		for i, branch := range state.Branches {
			if err := validate(branch); err != nil {
				return fmt.Errorf("state %q branch %d: %w", name, i, err)
			}
		}
	case StateMap:
		if state.Iterator == nil {
			return newValidationError(name, "Iterator", "map state has no iterator", ErrMissingIterator)
		}

		if err := validate(state.Iterator); err != nil {
			return fmt.Errorf("state %q iterator: %w", name, err)
		}
	case StatePass, StateSucceed, StateFail:
	}

	return nil
}

func validateTransition(def *Definition, name string, state *State) error {
	if state.Terminal() || state.Type == StateChoice {
		return nil
	}

	if state.Next != "" && state.End {
		return newValidationError(name, "Next", "state has both next and end", ErrConflictingTransition)
	}

	if state.Next == "" && !state.End {
		return newValidationError(name, "Next", "state has neither next nor end", ErrMissingTransition)
	}

	if state.Next != "" {
		if _, ok := def.States[state.Next]; !ok {
			return newValidationError(name, "Next",
				fmt.Sprintf("next state %q is not defined", state.Next), ErrUnknownState)
		}
	}

	return nil
}

func validateChoice(def *Definition, name string, state *State) error {
	if len(state.Choices) == 0 {
		return newValidationError(name, "Choices", "choice state has no rules", ErrNoChoices)
	}

	for i, rule := range state.Choices {
		if rule.Next == "" {
			return newValidationError(name, fmt.Sprintf("Choices[%d].Next", i),
				"choice rule has no next state", ErrMissingTransition)
		}

		if _, ok := def.States[rule.Next]; !ok {
			return newValidationError(name, fmt.Sprintf("Choices[%d].Next", i),
				fmt.Sprintf("choice target %q is not defined", rule.Next), ErrUnknownState)
		}
	}

	if state.Default != "" {
		if _, ok := def.States[state.Default]; !ok {
			return newValidationError(name, "Default",
				fmt.Sprintf("default target %q is not defined", state.Default), ErrUnknownState)
		}
	}

	return nil
}
