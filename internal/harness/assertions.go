package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/mapsync/internal/feature"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.named() {
				fmt.Fprintf(&buf, "  [%d] %s %s %v\n", event.Seq, event.Type, event.Action, event.Args)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an invocation or
// notification matching the action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.named() && event.Action == assertion.Action {
			if _, ok := subsetMatch(event.Args, assertion.Args); ok {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
// A name listed twice must occur twice.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	pos := make([]int, 0, len(assertion.Actions))
	for i, event := range trace {
		if next == len(assertion.Actions) {
			break
		}
		if event.named() && event.Action == assertion.Actions[next] {
			pos = append(pos, i+1) // 1-indexed for readability
			next++
		}
	}

	if next < len(assertion.Actions) {
		missing := assertion.Actions[next]
		actual := fmt.Sprintf("missing action: %s", missing)
		if next > 0 {
			actual = fmt.Sprintf("no %s after %s (pos %d)", missing, assertion.Actions[next-1], pos[next-1])
		}
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
			Actual:   actual,
			Trace:    trace,
		}
	}

	return nil
}

// assertTraceCount checks if the action appears exactly the specified number
// of times. Args, when given, narrow the events counted.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.named() && event.Action == assertion.Action {
			if _, ok := subsetMatch(event.Args, assertion.Args); ok {
				count++
			}
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// featureRow flattens a feature into the fields final_state can match:
// id, class, title, geometry (type name), points, and every property.
func featureRow(f *feature.Feature) map[string]interface{} {
	row := make(map[string]interface{}, len(f.Properties)+5)
	for k, v := range f.Properties {
		row[k] = v
	}
	row["id"] = f.ID
	row["class"] = string(f.Class())
	row["title"] = f.Title()
	row["geometry"] = ""
	row["points"] = 0
	if f.Geometry != nil {
		row["geometry"] = string(f.Geometry.Type)
		row["points"] = f.Geometry.NumPositions()
	}
	return row
}

// assertFinalState finds the one feature in the table matching Where and
// checks Expect against it (subset semantics).
func assertFinalState(features []*feature.Feature, assertion Assertion) error {
	whereDesc := formatWhereClause(assertion.Where)

	var matched []map[string]interface{}
	for _, f := range features {
		row := featureRow(f)
		if _, ok := subsetMatch(row, assertion.Where); ok {
			matched = append(matched, row)
		}
	}

	if exists, ok := assertion.Expect["exists"].(bool); ok && !exists {
		if len(matched) > 0 {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("no feature in %s where %s", assertion.Table, whereDesc),
				Actual:   fmt.Sprintf("%d feature(s) matched", len(matched)),
			}
		}
		return nil
	}

	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("feature in %s where %s", assertion.Table, whereDesc),
			Actual:   "feature not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one feature in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple features matched (assertion is ambiguous)",
		}
	}

	row := matched[0]
	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		if key == "exists" {
			continue
		}
		expectedValue := assertion.Expect[key]
		actualValue, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in fields: %v", key, sortedKeys(row)),
			}
		}
		if !valuesEqual(actualValue, expectedValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// formatWhereClause creates a human-readable description of Where.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// subsetMatch checks if actual contains every expected key with an equal
// value. It returns the first mismatching key. Extra keys in actual are
// ignored.
func subsetMatch(actual, expected map[string]interface{}) (string, bool) {
	for _, key := range sortedKeys(expected) {
		actualVal, exists := actual[key]
		if !exists || !valuesEqual(actualVal, expected[key]) {
			return key, false
		}
	}
	return "", true
}

// valuesEqual compares two values after normalizing numbers to float64 and
// typed slices to []interface{}, so YAML literals match Go values.
func valuesEqual(actual, expected interface{}) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

// AssertionContext provides the tables final_state assertions read.
type AssertionContext struct {
	Tables map[string]func() []*feature.Feature
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			var table func() []*feature.Feature
			if actx != nil {
				table = actx.Tables[assertion.Table]
			}
			if table == nil {
				err = fmt.Errorf("assertion[%d]: final_state has no table %q", i, assertion.Table)
			} else {
				err = assertFinalState(table(), assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
