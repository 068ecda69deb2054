package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/roach88/procura/internal/record"
	"github.com/roach88/procura/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string // Record the assertion looked at
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Target)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, st *store.Store, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertProcessState:
			err = assertDocument(ctx, st, a, record.Processes, a.Process)
		case AssertItemState:
			err = assertDocument(ctx, st, a, record.Items, record.ItemKey(a.Process, a.Item))
		case AssertEntityState:
			err = assertDocument(ctx, st, a, record.Entities, a.Entity)
		case AssertItemCount:
			err = assertItemCount(ctx, st, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertDocument checks a stored record against the expected fields
// (subset semantics).
func assertDocument(ctx context.Context, st *store.Store, a Assertion, collection, key string) error {
	target := collection + "/" + key
	doc, ok, err := st.Get(ctx, collection, key)
	if err != nil {
		return &AssertionError{Type: a.Type, Target: target, Expected: "readable record", Actual: err.Error()}
	}
	if !ok {
		return &AssertionError{Type: a.Type, Target: target, Expected: "record to exist", Actual: "not found"}
	}

	var actual map[string]any
	if err := doc.Decode(&actual); err != nil {
		return err
	}

	// Sort keys so the first mismatch reported is stable.
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		expected := a.Expect[k]
		got, exists := actual[k]
		if expected == nil {
			if exists && got != nil {
				return &AssertionError{
					Type:     a.Type,
					Target:   target,
					Expected: fmt.Sprintf("field %q unset", k),
					Actual:   fmt.Sprintf("field %q = %v", k, got),
				}
			}
			continue
		}
		if !exists {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("field %q = %v", k, expected),
				Actual:   fmt.Sprintf("field %q not set", k),
			}
		}
		if !valuesEqual(expected, got) {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("field %q = %v (type %T)", k, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", k, got, got),
			}
		}
	}
	return nil
}

func assertItemCount(ctx context.Context, st *store.Store, a Assertion) error {
	items, err := st.QueryByField(ctx, record.Items, "process_id", a.Process)
	if err != nil {
		return err
	}
	if len(items) != *a.Count {
		keys := make([]string, len(items))
		for i, d := range items {
			keys[i] = d.Key
		}
		return &AssertionError{
			Type:     a.Type,
			Target:   a.Process,
			Expected: fmt.Sprintf("%d item(s)", *a.Count),
			Actual:   fmt.Sprintf("%d item(s): %v", len(items), keys),
		}
	}
	return nil
}

// valuesEqual compares a YAML-decoded expected value with a JSON-decoded
// actual one. Numbers compare by value, timestamps as instants (YAML may
// hand them over as strings or time.Time), lists element by element.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if ef, ok := toFloat(expected); ok {
		af, ok := toFloat(actual)
		return ok && ef == af
	}

	switch exp := expected.(type) {
	case time.Time:
		at, ok := toTime(actual)
		return ok && exp.Equal(at)
	case string:
		as, ok := actual.(string)
		if !ok {
			return false
		}
		if exp == as {
			return true
		}
		// Timestamps written in another offset still denote the same instant.
		et, eok := toTime(exp)
		at, aok := toTime(as)
		return eok && aok && et.Equal(at)
	case []any:
		as, ok := actual.([]any)
		if !ok || len(as) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(exp[i], as[i]) {
				return false
			}
		}
		return true
	}

	// Fallback to DeepEqual for complex types
	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
