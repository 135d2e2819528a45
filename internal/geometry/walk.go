package geometry

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/roach88/mapsync/internal/feature"
)

const walkEpsilon = 1e-12

// cutLineByPolygons removes the parts of line that lie inside any of the
// polygons and returns the remaining runs in line order.
//
// Each segment is split at every crossing with a polygon edge, and each
// sub-segment is kept or dropped by testing its midpoint. The line is never
// noded against itself, so self-crossings survive. Original vertices keep
// their trailing components; inserted crossing points are 2-D. hit reports
// whether any part of the line lay inside a polygon. Touching a boundary
// from outside is not a hit.
func cutLineByPolygons(line []feature.Position, polys [][][]feature.Position) (runs [][]feature.Position, hit bool) {
	shapes := make([]orb.Polygon, len(polys))
	for i, rings := range polys {
		shapes[i] = toOrbPolygon(rings)
	}
	inside := func(p orb.Point) bool {
		for _, s := range shapes {
			if planar.PolygonContains(s, p) {
				return true
			}
		}
		return false
	}

	var cur []feature.Position
	flush := func() {
		if len(cur) >= 2 {
			runs = append(runs, cur)
		}
		cur = nil
	}

	for i := 0; i+1 < len(line); i++ {
		p, q := line[i], line[i+1]
		ts := []float64{0, 1}
		for _, s := range shapes {
			for _, ring := range s {
				for j := 0; j+1 < len(ring); j++ {
					if t, ok := segmentIntersect(p, q, ring[j], ring[j+1]); ok {
						ts = append(ts, t)
					}
				}
			}
		}
		slices.Sort(ts)
		ts = slices.CompactFunc(ts, func(a, b float64) bool { return math.Abs(a-b) < walkEpsilon })

		for k := 0; k+1 < len(ts); k++ {
			t0, t1 := ts[k], ts[k+1]
			mid := lerp(p, q, (t0+t1)/2)
			if inside(orb.Point{mid[0], mid[1]}) {
				hit = true
				flush()
				continue
			}
			if len(cur) == 0 {
				cur = append(cur, pointAt(p, q, t0))
			}
			cur = append(cur, pointAt(p, q, t1))
		}
	}
	flush()
	return runs, hit
}

// pointAt returns the original endpoint at t of 0 or 1 and a 2-D
// interpolated point otherwise.
func pointAt(p, q feature.Position, t float64) feature.Position {
	switch t {
	case 0:
		return p.Clone()
	case 1:
		return q.Clone()
	}
	return lerp(p, q, t)
}

func lerp(p, q feature.Position, t float64) feature.Position {
	return feature.Position{
		p[0] + (q[0]-p[0])*t,
		p[1] + (q[1]-p[1])*t,
	}
}

// segmentIntersect returns the parameter along pq at which it crosses ab.
// Parallel segments never cross.
func segmentIntersect(p, q feature.Position, a, b orb.Point) (float64, bool) {
	rx, ry := q[0]-p[0], q[1]-p[1]
	sx, sy := b[0]-a[0], b[1]-a[1]

	denom := rx*sy - ry*sx
	if math.Abs(denom) < walkEpsilon {
		return 0, false
	}

	ax, ay := a[0]-p[0], a[1]-p[1]
	t := (ax*sy - ay*sx) / denom
	u := (ax*ry - ay*rx) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

func toOrbPolygon(rings [][]feature.Position) orb.Polygon {
	poly := make(orb.Polygon, len(rings))
	for i, r := range rings {
		ring := make(orb.Ring, len(r))
		for j, p := range r {
			ring[j] = orb.Point{p.Lon(), p.Lat()}
		}
		poly[i] = ring
	}
	return poly
}
