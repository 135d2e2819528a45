package geometry

import (
	"math"

	"github.com/roach88/mapsync/internal/feature"
)

const matchDistance = 1e-9

// fourify re-attaches trailing components (elevation, time) that were lost
// when a geometry went through GEOS. A 2-D vertex that coincides with an
// original vertex takes that vertex's components. An unmatched first or
// last vertex of a list takes the components of the nearest original
// endpoint. Other unmatched vertices stay 2-D.
func fourify(g *feature.Geometry, original *feature.Geometry) {
	orig := original.Positions()
	var ends []feature.Position
	for _, l := range original.PointLists() {
		if len(l) > 0 {
			ends = append(ends, l[0], l[len(l)-1])
		}
	}

	for _, list := range g.PointLists() {
		for i, p := range list {
			if len(p) > 2 {
				continue
			}
			if src, d := nearest(p, orig); src != nil && d <= matchDistance {
				list[i] = withTrailing(p, src)
				continue
			}
			if i == 0 || i == len(list)-1 {
				if src, _ := nearest(p, ends); src != nil {
					list[i] = withTrailing(p, src)
				}
			}
		}
	}
}

func nearest(p feature.Position, candidates []feature.Position) (feature.Position, float64) {
	var (
		best     feature.Position
		bestDist = math.Inf(1)
	)
	for _, c := range candidates {
		if len(c) < 2 {
			continue
		}
		if d := math.Hypot(c[0]-p[0], c[1]-p[1]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func withTrailing(p, src feature.Position) feature.Position {
	out := feature.Position{p[0], p[1]}
	if len(src) > 2 {
		out = append(out, src[2:]...)
	}
	return out
}
