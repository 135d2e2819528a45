package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	scenarioPath := filepath.Join(t.TempDir(), "test.yaml")
	content := `
name: test_scenario
description: "Test scenario for validation"
setup:
  - action: server.put
    args: { id: A, title: alpha, point: [-120.5, 39.1] }
flow:
  - invoke: marker
    args:
      title: "IC"
      lon: -120.1
      lat: 39
assertions:
  - type: trace_contains
    action: marker
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, DefaultMapID, scenario.MapID)
	assert.Len(t, scenario.Setup, 1)
	assert.Len(t, scenario.Flow, 1)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, "marker", scenario.Flow[0].Invoke)
	assert.Equal(t, "IC", scenario.Flow[0].Args["title"])
	assert.Equal(t, -120.1, scenario.Flow[0].Args["lon"])
	assert.Equal(t, 39, scenario.Flow[0].Args["lat"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	content := `
name: typo
description: "has a typo"
flow:
  - invoke: refresh
    args: {}
assertion:
  - type: trace_contains
    action: refresh
`
	_, err := ParseScenario([]byte(content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_MapID(t *testing.T) {
	content := `
name: other_map
description: "names its map"
map_id: XYZ789
flow:
  - invoke: refresh
    args: {}
assertions:
  - type: trace_contains
    action: refresh
`
	scenario, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", scenario.MapID)
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Flow:        []FlowStep{{Invoke: "refresh", Args: map[string]interface{}{}}},
			Assertions:  []Assertion{{Type: AssertTraceContains, Action: "refresh"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no flow", func(s *Scenario) { s.Flow = nil }, "flow list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"unknown flow action", func(s *Scenario) { s.Flow[0].Invoke = "teleport" }, `unknown action "teleport"`},
		{"flow without args", func(s *Scenario) { s.Flow[0].Args = nil }, "flow[0]: args is required"},
		{"empty expect case", func(s *Scenario) { s.Flow[0].Expect = &ExpectClause{} }, "flow[0].expect: case is required"},
		{"client action in setup", func(s *Scenario) {
			s.Setup = []ActionStep{{Action: "refresh", Args: map[string]interface{}{}}}
		}, "only server.* actions may run in setup"},
		{"unknown server action", func(s *Scenario) {
			s.Setup = []ActionStep{{Action: "server.explode", Args: map[string]interface{}{}}}
		}, `unknown action "server.explode"`},
		{"setup without args", func(s *Scenario) {
			s.Setup = []ActionStep{{Action: "server.deny"}}
		}, "setup[0]: args is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"no type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "vibes"}, `unknown assertion type "vibes"`},
		{"contains without action", Assertion{Type: AssertTraceContains}, "action is required for trace_contains"},
		{"order without actions", Assertion{Type: AssertTraceOrder}, "actions list is required"},
		{"count without action", Assertion{Type: AssertTraceCount}, "action is required for trace_count"},
		{"negative count", Assertion{Type: AssertTraceCount, Action: "new", Count: -1}, "count must be non-negative"},
		{"bad table", Assertion{Type: AssertFinalState, Table: "features"}, "table must be"},
		{"no where", Assertion{Type: AssertFinalState, Table: TableCache, Expect: map[string]interface{}{"title": "a"}}, "where is required"},
		{"no expect", Assertion{Type: AssertFinalState, Table: TableServer, Where: map[string]interface{}{"id": "A"}}, "expect is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(3, &tt.a)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "assertions[3]")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	ok := Assertion{Type: AssertFinalState, Table: TableCache, Where: map[string]interface{}{"id": "A"}, Expect: map[string]interface{}{"exists": false}}
	assert.NoError(t, validateAssertion(0, &ok))
}
