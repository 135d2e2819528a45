package feature

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeature_DecodeTrack(t *testing.T) {
	raw := `{
		"id": "trk-1",
		"type": "Feature",
		"properties": {"class": "LiveTrack", "title": "Team 1"},
		"geometry": {
			"type": "LineString",
			"incremental": true,
			"coordinates": [[-120.1, 39.1, 1500, 1000], [-120.2, 39.2, 1510, 2000]]
		}
	}`

	var f Feature
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	assert.Equal(t, "trk-1", f.ID)
	assert.Equal(t, ClassLiveTrack, f.Class())
	assert.Equal(t, "Team 1", f.Title())
	require.NotNil(t, f.Geometry)
	assert.Equal(t, LineString, f.Geometry.Type)
	assert.True(t, f.Geometry.Incremental)
	require.Len(t, f.Geometry.Line, 2)

	ts, ok := f.Geometry.Line[1].Timestamp()
	require.True(t, ok)
	assert.Equal(t, 2000.0, ts)
}

func TestGeometry_EncodeKeepsShape(t *testing.T) {
	g := NewPolygon([]Position{{0, 0}, {1, 0}, {1, 1}, {0, 0}})

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, string(data))
}

func TestGeometry_UnknownTypeRoundTrips(t *testing.T) {
	raw := `{"type":"GeometryCollection","coordinates":[1,2,3]}`

	var g Geometry
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, GeometryType("GeometryCollection"), g.Type)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(data))
}

func TestGeometry_PointListsAlias(t *testing.T) {
	g := NewPoint(Position{39, -120})

	lists := g.PointLists()
	require.Len(t, lists, 1)
	lists[0][0][0], lists[0][0][1] = lists[0][0][1], lists[0][0][0]

	assert.Equal(t, Position{-120, 39}, g.Coord)
}

func TestFeature_CloneIsDeep(t *testing.T) {
	f := New("a", ClassShape, "line", NewLineString([]Position{{0, 0}, {1, 1}}))
	f.Properties["nested"] = map[string]any{"k": "v"}

	c := f.Clone()
	c.Geometry.Line[0][0] = 42
	c.Properties["nested"].(map[string]any)["k"] = "changed"
	c.SetTitle("other")

	assert.Equal(t, 0.0, f.Geometry.Line[0][0])
	assert.Equal(t, "v", f.Properties["nested"].(map[string]any)["k"])
	assert.Equal(t, "line", f.Title())
}

func TestPosition_TimestampNeedsTrailingComponent(t *testing.T) {
	_, ok := Position{1, 2}.Timestamp()
	assert.False(t, ok)
}

func TestClass_Geometric(t *testing.T) {
	assert.True(t, ClassMarker.Geometric())
	assert.True(t, ClassShape.Geometric())
	assert.False(t, ClassFolder.Geometric())
	assert.False(t, ClassOperationalPeriod.Geometric())
}

func TestSameTitle_Normalizes(t *testing.T) {
	assert.True(t, SameTitle("caf\u00e9", "cafe\u0301 "))
	assert.False(t, SameTitle("cafe", "caf\u00e9"))
}
