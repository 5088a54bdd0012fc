package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotObject is returned when the answer decodes to something other than a JSON object.
var ErrNotObject = errors.New("answer is not a JSON object")

// ValidationError reports an answer that does not match the expected shape.
type ValidationError struct {
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "schema validation error"
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required keys: %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid JSON answer: %v", e.Err)
	}
	return "schema validation error"
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CanonicalKey maps the accepted spellings of a key onto one form:
// "relevant objects" and "relevant_objects" are the same key.
func CanonicalKey(key string) string {
	return strings.Join(strings.Fields(key), "_")
}

// Normalize rewrites the top-level keys of obj to their canonical form.
// When two spellings collide the one already canonical wins.
func Normalize(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		canonical := CanonicalKey(key)
		if _, taken := out[canonical]; taken && key != canonical {
			continue
		}
		out[canonical] = value
	}
	return out
}

// DecodeObject parses text as a JSON object and normalizes its keys.
func DecodeObject(text string) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &ValidationError{Err: err}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Err: ErrNotObject}
	}
	return Normalize(obj), nil
}

// RequireKeys checks that every canonical key is present in a normalized object.
func RequireKeys(obj map[string]any, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if _, ok := obj[CanonicalKey(key)]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Into re-encodes a normalized object into a typed answer.
func Into(obj map[string]any, out any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return &ValidationError{Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// DecodeGoalInterpretation validates and decodes a goal interpretation answer.
func DecodeGoalInterpretation(obj map[string]any) (*GoalInterpretation, error) {
	if err := RequireKeys(obj, GoalInterpretationKeys...); err != nil {
		return nil, err
	}
	var out GoalInterpretation
	if err := Into(obj, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeSubgoalDecomposition validates and decodes a subgoal decomposition answer.
func DecodeSubgoalDecomposition(obj map[string]any) (*SubgoalDecomposition, error) {
	if err := RequireKeys(obj, SubgoalDecompositionKeys...); err != nil {
		return nil, err
	}
	var out SubgoalDecomposition
	if err := Into(obj, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
