package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mapsync/internal/feature"
)

// sampleTrace is a refresh that found two features, then a marker create.
func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventInvocation, Action: "refresh", Seq: 1},
		{Type: EventNotification, Action: "new", Args: map[string]interface{}{"id": "A", "class": "Marker", "title": "alpha"}, Seq: 2},
		{Type: EventNotification, Action: "new", Args: map[string]interface{}{"id": "B", "class": "Shape", "title": "bravo"}, Seq: 3},
		{Type: EventCompletion, Case: CaseOK, Result: map[string]interface{}{"features": 2}, Seq: 4},
		{Type: EventInvocation, Action: "marker", Args: map[string]interface{}{"title": "IC", "lon": -120.1, "lat": 39}, Seq: 5},
		{Type: EventCompletion, Case: CaseOK, Result: map[string]interface{}{"id": "F0001"}, Seq: 6},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "new", Args: map[string]interface{}{"id": "B"}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "marker", Args: map[string]interface{}{"lat": 39.0}}), "numbers compare across int and float")
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "refresh"}))

	err := assertTraceContains(trace, Assertion{Action: "new", Args: map[string]interface{}{"id": "C"}})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Contains(t, err.Error(), "not found in trace")
	assert.Contains(t, err.Error(), "[5] invocation marker")
}

func TestAssertTraceContains_IgnoresCompletions(t *testing.T) {
	// Completions carry no action name to match.
	trace := []TraceEvent{{Type: EventCompletion, Action: "refresh", Case: CaseOK, Seq: 1}}
	assert.Error(t, assertTraceContains(trace, Assertion{Action: "refresh"}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"refresh", "new", "marker"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"new", "new", "marker"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"marker", "new"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no new after marker (pos 5)")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"new", "new", "new"}})
	require.Error(t, err)

	err = assertTraceOrder(trace, Assertion{Actions: []string{"deleted"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: deleted")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "new", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "new", Args: map[string]interface{}{"class": "Shape"}, Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "deleted", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "new", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences of new")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func sampleFeatures() []*feature.Feature {
	a := feature.New("A", feature.ClassMarker, "alpha", feature.NewPoint(feature.Position{-120.5, 39.1}))
	a.Properties["description"] = "north lot"
	b := feature.New("B", feature.ClassShape, "bravo", feature.NewLineString([]feature.Position{{-120, 39}, {-120.1, 39.2}}))
	c := feature.New("C", feature.ClassShape, "bravo", nil)
	return []*feature.Feature{a, b, c}
}

func TestAssertFinalState(t *testing.T) {
	fs := sampleFeatures()

	tests := []struct {
		name    string
		where   map[string]interface{}
		expect  map[string]interface{}
		wantErr string
	}{
		{"match", map[string]interface{}{"id": "A"}, map[string]interface{}{"title": "alpha", "class": "Marker", "geometry": "Point", "points": 1}, ""},
		{"property", map[string]interface{}{"id": "A"}, map[string]interface{}{"description": "north lot"}, ""},
		{"no geometry", map[string]interface{}{"id": "C"}, map[string]interface{}{"geometry": "", "points": 0}, ""},
		{"absent", map[string]interface{}{"id": "Z"}, map[string]interface{}{"exists": false}, ""},
		{"present but expected absent", map[string]interface{}{"id": "A"}, map[string]interface{}{"exists": false}, "1 feature(s) matched"},
		{"not found", map[string]interface{}{"id": "Z"}, map[string]interface{}{"title": "x"}, "feature not found"},
		{"ambiguous", map[string]interface{}{"title": "bravo"}, map[string]interface{}{"class": "Shape"}, "assertion is ambiguous"},
		{"wrong value", map[string]interface{}{"id": "B"}, map[string]interface{}{"points": 3}, `field "points" = 2`},
		{"missing field", map[string]interface{}{"id": "B"}, map[string]interface{}{"color": "red"}, `field "color" not present`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(fs, Assertion{Type: AssertFinalState, Table: TableCache, Where: tt.where, Expect: tt.expect})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	actx := &AssertionContext{Tables: map[string]func() []*feature.Feature{
		TableCache: sampleFeatures,
	}}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "marker"},
		{Type: AssertTraceCount, Action: "new", Count: 2},
		{Type: AssertFinalState, Table: TableCache, Where: map[string]interface{}{"id": "A"}, Expect: map[string]interface{}{"title": "alpha"}},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertFinalState, Table: TableServer, Where: map[string]interface{}{"id": "A"}, Expect: map[string]interface{}{"title": "alpha"}},
		{Type: "vibes"},
	}, actx)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], `final_state has no table "server"`)
	assert.Contains(t, errs[1], `unknown assertion type "vibes"`)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(2, 2.0))
	assert.True(t, valuesEqual(int64(7), 7))
	assert.True(t, valuesEqual([]string{"F0001"}, []interface{}{"F0001"}))
	assert.True(t, valuesEqual(map[string]interface{}{"n": 1}, map[string]interface{}{"n": 1.0}))
	assert.True(t, valuesEqual([]interface{}{}, []interface{}{}))
	assert.False(t, valuesEqual("1", 1))
	assert.False(t, valuesEqual(nil, 0))
}
