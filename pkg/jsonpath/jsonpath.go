// Package jsonpath reads and writes nested JSON values using a minimal
// path syntax: a "$" root token, dot-separated field names and bracketed
// numeric indices ("$.order.items[2].sku").
package jsonpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Get when the path does not resolve to a value.
// Callers use it to implement presence checks, so it is a sentinel rather
// than a formatted error.
var ErrNotFound = errors.New("path not found")

// ErrIndexOutOfRange is returned by Set when a bracketed index addresses an
// array slot that does not exist. Missing maps are created on write, missing
// array slots are not.
var ErrIndexOutOfRange = errors.New("array index out of range")

// ErrNotContainer is returned when a path segment traverses a value that is
// neither an object nor an array.
var ErrNotContainer = errors.New("value is not a container")

type segment struct {
	field   string
	index   int
	isIndex bool
}

// Root reports whether path addresses the whole value. An empty path is
// treated as the root so unconfigured paths default to "everything".
func Root(path string) bool {
	return path == "" || path == "$"
}

func parse(path string) ([]segment, error) {
	if Root(path) {
		return nil, nil
	}

	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("path %q must start with '$'", path)
	}

	rest := path[1:]
	segments := make([]segment, 0, 4)

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]

			end := strings.IndexAny(rest, ".[")
			if end == -1 {
				end = len(rest)
			}

			if end == 0 {
				return nil, fmt.Errorf("path %q has an empty field name", path)
			}

			segments = append(segments, segment{field: rest[:end]})
			rest = rest[end:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end == -1 {
				return nil, fmt.Errorf("path %q has an unterminated index", path)
			}

			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("path %q has an invalid index %q", path, rest[1:end])
			}

			segments = append(segments, segment{index: idx, isIndex: true})
			rest = rest[end+1:]
		default:
			return nil, fmt.Errorf("unexpected character %q in path %q", rest[0], path)
		}
	}

	return segments, nil
}

// Get resolves path against value. A root path returns value unchanged.
// Missing fields, out-of-range indices and traversals through non-container
// values all resolve to ErrNotFound so callers can distinguish "absent" from
// a malformed path.
func Get(value any, path string) (any, error) {
	segments, err := parse(path)
	if err != nil {
		return nil, err
	}

	current := value
	for _, seg := range segments {
		if seg.isIndex {
			arr, ok := current.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, ErrNotFound
			}

			current = arr[seg.index]

			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return nil, ErrNotFound
		}

		next, ok := obj[seg.field]
		if !ok {
			return nil, ErrNotFound
		}

		current = next
	}

	return current, nil
}

// Set returns a copy of target with the value at path replaced. The input is
// never mutated. A root path replaces the whole target. Missing intermediate
// maps are created along the way; indexing an absent array slot is an error.
func Set(target any, path string, value any) (any, error) {
	segments, err := parse(path)
	if err != nil {
		return nil, err
	}

	if len(segments) == 0 {
		return value, nil
	}

	result := DeepCopy(target)

	if err := setSegments(&result, segments, value); err != nil {
		return nil, err
	}

	return result, nil
}

func setSegments(slot *any, segments []segment, value any) error {
	if len(segments) == 0 {
		*slot = value

		return nil
	}

	seg := segments[0]

	if seg.isIndex {
		arr, ok := (*slot).([]any)
		if !ok {
			return fmt.Errorf("cannot index into %T: %w", *slot, ErrNotContainer)
		}

		if seg.index >= len(arr) {
			return fmt.Errorf("index %d exceeds array length %d: %w", seg.index, len(arr), ErrIndexOutOfRange)
		}

		if err := setSegments(&arr[seg.index], segments[1:], value); err != nil {
			return err
		}

		*slot = arr

		return nil
	}

	obj, ok := (*slot).(map[string]any)
	if !ok {
		if *slot != nil {
			return fmt.Errorf("cannot set field %q on %T: %w", seg.field, *slot, ErrNotContainer)
		}

		obj = make(map[string]any)
	}

	child := obj[seg.field]
	if err := setSegments(&child, segments[1:], value); err != nil {
		return err
	}

	obj[seg.field] = child
	*slot = obj

	return nil
}

// DeepCopy clones a JSON value. Maps and arrays are copied recursively,
// scalars are returned as-is.
func DeepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = DeepCopy(e)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = DeepCopy(e)
		}

		return out
	default:
		return v
	}
}
