package session

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mapsync/internal/feature"
)

func TestClassifyPoint(t *testing.T) {
	assert.Equal(t, pointSwapped, classifyPoint(feature.Position{39.1, -120.2}))
	assert.Equal(t, pointValid, classifyPoint(feature.Position{-120.2, 39.1}))
	assert.Equal(t, pointAmbiguous, classifyPoint(feature.Position{10, 20}))
}

func TestCheckCoordinates_ModifyTransposesSwappedOnly(t *testing.T) {
	g := feature.NewLineString([]feature.Position{{39.1, -120.2, 1500}, {39.2, -120.3, 1510}})

	changed, err := checkCoordinates(g, CoordCheckModify, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []feature.Position{{-120.2, 39.1, 1500}, {-120.3, 39.2, 1510}}, g.Line)
}

func TestCheckCoordinates_ModifyAbortsMixed(t *testing.T) {
	g := feature.NewLineString([]feature.Position{{39.1, -120.2}, {-120.3, 39.2}})

	_, err := checkCoordinates(g, CoordCheckModify, slog.Default())
	require.Error(t, err)
	assert.True(t, IsAmbiguousCoordsError(err))
}

func TestCheckCoordinates_WarnLeavesGeometry(t *testing.T) {
	g := feature.NewPoint(feature.Position{39.1, -120.2})

	changed, err := checkCoordinates(g, CoordCheckWarn, slog.Default())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, feature.Position{39.1, -120.2}, g.Coord)
}

func TestCheckCoordinates_AmbiguousUntouched(t *testing.T) {
	g := feature.NewPoint(feature.Position{10, 20})

	changed, err := checkCoordinates(g, CoordCheckModify, slog.Default())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, feature.Position{10, 20}, g.Coord)
}

func TestCheckCoordinates_ModifyDecidesPerList(t *testing.T) {
	g := &feature.Geometry{
		Type: feature.MultiLineString,
		Rings: [][]feature.Position{
			{{39.1, -120.2}, {39.2, -120.3}},
			{{-121.0, 38.0}, {-121.1, 38.1}},
		},
	}

	changed, err := checkCoordinates(g, CoordCheckModify, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, [][]feature.Position{
		{{-120.2, 39.1}, {-120.3, 39.2}},
		{{-121.0, 38.0}, {-121.1, 38.1}},
	}, g.Rings)
}

func TestCheckCoordinates_MixedListAbortsWithoutChanges(t *testing.T) {
	g := &feature.Geometry{
		Type: feature.MultiLineString,
		Rings: [][]feature.Position{
			{{39.1, -120.2}, {39.2, -120.3}},
			{{39.1, -120.2}, {-121.1, 38.1}},
		},
	}

	_, err := checkCoordinates(g, CoordCheckModify, slog.Default())
	require.Error(t, err)
	assert.True(t, IsAmbiguousCoordsError(err))
	assert.Equal(t, feature.Position{39.1, -120.2}, g.Rings[0][0])
}
