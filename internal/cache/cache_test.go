package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mapsync/internal/feature"
)

func marker(id, title string, lon, lat float64) *feature.Feature {
	return feature.New(id, feature.ClassMarker, title, feature.NewPoint(feature.Position{lon, lat}))
}

func track(id string, class feature.Class, pts ...feature.Position) *feature.Feature {
	g := feature.NewLineString(pts)
	g.Incremental = true
	return feature.New(id, class, "track "+id, g)
}

func kinds(changes []Change) []ChangeKind {
	out := make([]ChangeKind, len(changes))
	for i, c := range changes {
		out[i] = c.Kind
	}
	return out
}

func TestCache_PutAndRemove(t *testing.T) {
	c := New()
	c.Put(marker("m1", "stuff", -120, 39))

	assert.Equal(t, []string{"m1"}, c.IDs(feature.ClassMarker))
	got, ok := c.Get("m1", feature.ClassMarker)
	require.True(t, ok)
	assert.Equal(t, "stuff", got.Title())

	// Put again replaces rather than duplicating.
	c.Put(marker("m1", "renamed", -120, 39))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"m1"}, c.IDs(feature.ClassMarker))

	assert.True(t, c.Remove("m1", feature.ClassMarker))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.IDs(feature.ClassMarker))
	assert.False(t, c.Remove("m1", feature.ClassMarker))
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := New()
	c.Put(marker("m1", "stuff", -120, 39))

	got, _ := c.Get("m1", feature.ClassMarker)
	got.SetTitle("mutated")

	again, _ := c.Get("m1", feature.ClassMarker)
	assert.Equal(t, "stuff", again.Title())
}

func TestCache_FindByTitleSkipsExcludedClasses(t *testing.T) {
	c := New()
	c.Put(marker("m1", "Base", 0, 0))
	c.Put(feature.New("f1", feature.ClassFolder, "Base", nil))

	got := c.FindByTitle(" Base", func(cl feature.Class) bool { return cl.Geometric() })
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestMerge_FirstSyncAddsEverything(t *testing.T) {
	c := New()
	changes := c.Merge(Update{
		IDs:      IDSet{feature.ClassMarker: {"m1", "m2"}},
		Features: []*feature.Feature{marker("m1", "a", 1, 1), marker("m2", "b", 2, 2)},
	})

	assert.Equal(t, []ChangeKind{ChangeNew, ChangeNew}, kinds(changes))
	assert.Equal(t, 2, c.Len())
}

func TestMerge_RepollIsIdempotent(t *testing.T) {
	c := New()
	u := Update{
		IDs:      IDSet{feature.ClassMarker: {"m1"}},
		Features: []*feature.Feature{marker("m1", "a", 1, 1)},
	}
	c.Merge(u)

	changes := c.Merge(u)
	assert.Empty(t, changes)
}

func TestMerge_PropertiesNeedTitle(t *testing.T) {
	c := New()
	c.Merge(Update{Features: []*feature.Feature{marker("m1", "a", 1, 1)}})

	// A geometry-only update leaves properties alone.
	c.Merge(Update{Features: []*feature.Feature{{
		ID:         "m1",
		Properties: map[string]any{"class": "Marker"},
		Geometry:   feature.NewPoint(feature.Position{2, 2}),
	}}})
	got, _ := c.Get("m1", feature.ClassMarker)
	assert.Equal(t, "a", got.Title())
	assert.Equal(t, feature.Position{2, 2}, got.Geometry.Coord)

	changes := c.Merge(Update{Features: []*feature.Feature{marker("m1", "b", 2, 2)}})
	assert.Equal(t, []ChangeKind{ChangeProperties}, kinds(changes))
}

func TestMerge_MatchesOnIDAndClass(t *testing.T) {
	c := New()
	c.Merge(Update{Features: []*feature.Feature{
		track("t1", feature.ClassLiveTrack, feature.Position{0, 0, 0, 1}),
	}})

	changes := c.Merge(Update{Features: []*feature.Feature{
		track("t1", feature.ClassShape, feature.Position{0, 0, 0, 1}),
	}})

	assert.Equal(t, []ChangeKind{ChangeNew}, kinds(changes))
	assert.Equal(t, 2, c.Len())
}

func TestMerge_IncrementalSplice(t *testing.T) {
	c := New()
	c.Merge(Update{Features: []*feature.Feature{
		track("t1", feature.ClassLiveTrack,
			feature.Position{0, 0, 10, 1000},
			feature.Position{1, 1, 10, 2000},
		),
	}})

	// Server resends an overlapping window.
	changes := c.Merge(Update{Features: []*feature.Feature{
		track("t1", feature.ClassLiveTrack,
			feature.Position{1, 1, 10, 2000},
			feature.Position{2, 2, 10, 3000},
			feature.Position{3, 3, 10, 4000},
		),
	}})
	assert.Equal(t, []ChangeKind{ChangeGeometry}, kinds(changes))

	got, _ := c.Get("t1", feature.ClassLiveTrack)
	require.Len(t, got.Geometry.Line, 4)
	for i := 1; i < len(got.Geometry.Line); i++ {
		prev, _ := got.Geometry.Line[i-1].Timestamp()
		cur, _ := got.Geometry.Line[i].Timestamp()
		assert.Less(t, prev, cur)
	}

	// Nothing new: no notification.
	changes = c.Merge(Update{Features: []*feature.Feature{
		track("t1", feature.ClassLiveTrack, feature.Position{3, 3, 10, 4000}),
	}})
	assert.Empty(t, changes)
}

func TestMerge_NonIncrementalReplacesGeometry(t *testing.T) {
	c := New()
	c.Merge(Update{Features: []*feature.Feature{
		track("t1", feature.ClassLiveTrack, feature.Position{0, 0, 0, 1}, feature.Position{1, 1, 0, 2}),
	}})

	full := track("t1", feature.ClassLiveTrack, feature.Position{5, 5, 0, 9})
	full.Geometry.Incremental = false
	c.Merge(Update{Features: []*feature.Feature{full}})

	got, _ := c.Get("t1", feature.ClassLiveTrack)
	assert.Len(t, got.Geometry.Line, 1)
}

func TestMerge_DroppedIDRemovedOnce(t *testing.T) {
	c := New()
	c.Merge(Update{
		IDs:      IDSet{feature.ClassMarker: {"m1", "m2"}},
		Features: []*feature.Feature{marker("m1", "a", 1, 1), marker("m2", "b", 2, 2)},
	})

	changes := c.Merge(Update{IDs: IDSet{feature.ClassMarker: {"m2"}}})
	require.Equal(t, []ChangeKind{ChangeDeleted}, kinds(changes))
	assert.Equal(t, "m1", changes[0].ID)
	assert.Equal(t, feature.ClassMarker, changes[0].Class)

	changes = c.Merge(Update{IDs: IDSet{feature.ClassMarker: {"m2"}}})
	assert.Empty(t, changes)
	assert.Equal(t, 1, c.Len())
}

func TestMerge_DeletionsComeAfterMerges(t *testing.T) {
	c := New()
	c.Merge(Update{
		IDs:      IDSet{feature.ClassMarker: {"m1"}},
		Features: []*feature.Feature{marker("m1", "a", 1, 1)},
	})

	changes := c.Merge(Update{
		IDs:      IDSet{feature.ClassMarker: {"m2"}},
		Features: []*feature.Feature{marker("m2", "b", 2, 2)},
	})
	assert.Equal(t, []ChangeKind{ChangeNew, ChangeDeleted}, kinds(changes))
}

func TestMerge_NoSnapshotKeepsIDs(t *testing.T) {
	c := New()
	c.Merge(Update{IDs: IDSet{feature.ClassMarker: {"m1"}}, Features: []*feature.Feature{marker("m1", "a", 1, 1)}})

	c.Merge(Update{Features: []*feature.Feature{marker("m1", "b", 1, 1)}})
	assert.Equal(t, []string{"m1"}, c.IDs(feature.ClassMarker))
}

func TestSplice_UnionIsOrderedAndDuplicateFree(t *testing.T) {
	cached := []feature.Position{{0, 0, 0, 1}, {0, 0, 0, 2}, {0, 0, 0, 3}}
	incoming := []feature.Position{{0, 0, 0, 2}, {0, 0, 0, 3}, {0, 0, 0, 4}, {0, 0, 0, 5}}

	got, ok := Splice(cached, incoming)
	require.True(t, ok)

	var ts []float64
	for _, p := range got {
		v, _ := p.Timestamp()
		ts = append(ts, v)
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, ts)
}

func TestSplice_NoTimestampCannotSplice(t *testing.T) {
	_, ok := Splice([]feature.Position{{0, 0}}, []feature.Position{{1, 1}})
	assert.False(t, ok)
}

func TestCache_Reset(t *testing.T) {
	c := New()
	c.Put(marker("m1", "a", 1, 1))
	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.IDSet())
}
