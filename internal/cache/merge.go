package cache

import (
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/mapsync/internal/feature"
)

// ChangeKind says what a sync cycle did to one feature.
type ChangeKind int

const (
	// ChangeNew means a feature was added to the cache.
	ChangeNew ChangeKind = iota + 1
	// ChangeProperties means a cached feature's properties were replaced.
	ChangeProperties
	// ChangeGeometry means a cached feature's geometry was replaced or spliced.
	ChangeGeometry
	// ChangeDeleted means a feature was dropped because its id left the id-set.
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeProperties:
		return "properties"
	case ChangeGeometry:
		return "geometry"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// Change is one notification-worthy outcome of Merge. Feature is a copy of
// the merged feature (nil for deletions).
type Change struct {
	Kind    ChangeKind
	ID      string
	Class   feature.Class
	Feature *feature.Feature
}

// Update is the decoded result of a "since" poll.
type Update struct {
	// IDs is the full id-set snapshot, or nil when the response had none.
	IDs IDSet
	// Features are the features changed since the poll's timestamp.
	Features []*feature.Feature
}

var equalOpts = cmp.Options{cmpopts.EquateEmpty()}

// Merge applies a poll result and returns the resulting changes in order:
// merges and additions first, deletions last.
func (c *Cache) Merge(u Update) []Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev IDSet
	if u.IDs != nil {
		prev = c.ids
		c.ids = u.IDs.Clone()
	}

	var changes []Change
	for _, in := range u.Features {
		if in == nil || in.ID == "" {
			continue
		}
		changes = append(changes, c.mergeOne(in)...)
	}

	if prev != nil {
		changes = append(changes, c.dropMissing(prev)...)
	}
	return changes
}

// mergeOne must be called with mu held.
func (c *Cache) mergeOne(in *feature.Feature) []Change {
	class := in.Class()
	i := c.index(in.ID, class)
	if i < 0 {
		f := in.Clone()
		c.features = append(c.features, f)
		return []Change{{Kind: ChangeNew, ID: f.ID, Class: class, Feature: f.Clone()}}
	}

	cur := c.features[i]
	var changes []Change

	if in.HasTitle() {
		next := feature.CloneProperties(in.Properties)
		if !cmp.Equal(cur.Properties, next, equalOpts) {
			cur.Properties = next
			changes = append(changes, Change{Kind: ChangeProperties, ID: cur.ID, Class: class, Feature: cur.Clone()})
		}
	}

	if in.Geometry != nil {
		next := mergeGeometry(cur.Geometry, in.Geometry)
		if !cmp.Equal(cur.Geometry, next, equalOpts) {
			cur.Geometry = next
			changes = append(changes, Change{Kind: ChangeGeometry, ID: cur.ID, Class: class, Feature: cur.Clone()})
		}
	}
	return changes
}

// dropMissing must be called with mu held.
func (c *Cache) dropMissing(prev IDSet) []Change {
	var changes []Change
	for class, ids := range prev {
		now := c.ids[class]
		for _, id := range ids {
			if slices.Contains(now, id) {
				continue
			}
			if c.removeFeature(id, class) {
				changes = append(changes, Change{Kind: ChangeDeleted, ID: id, Class: class})
			}
		}
	}
	return changes
}

// mergeGeometry splices incremental tracks and otherwise takes the incoming
// geometry as-is.
func mergeGeometry(cur, in *feature.Geometry) *feature.Geometry {
	if cur != nil && cur.Incremental && in.Incremental &&
		cur.Type == feature.LineString && in.Type == feature.LineString {
		if line, ok := Splice(cur.Line, in.Line); ok {
			out := cur.Clone()
			out.Line = line
			return out
		}
	}
	return in.Clone()
}

// Splice appends the incoming positions whose timestamp is newer than the
// last cached one. It reports false when the cached line has no timestamp
// to splice against.
func Splice(cached, incoming []feature.Position) ([]feature.Position, bool) {
	out := make([]feature.Position, 0, len(cached)+len(incoming))
	for _, p := range cached {
		out = append(out, p.Clone())
	}
	if len(cached) == 0 {
		for _, p := range incoming {
			out = append(out, p.Clone())
		}
		return out, true
	}

	last, ok := cached[len(cached)-1].Timestamp()
	if !ok {
		return nil, false
	}
	for _, p := range incoming {
		ts, ok := p.Timestamp()
		if !ok || ts <= last {
			continue
		}
		out = append(out, p.Clone())
		last = ts
	}
	return out, true
}
