package geometry

import (
	"fmt"

	"github.com/paulsmith/gogeos/geos"

	"github.com/roach88/mapsync/internal/feature"
)

// removeSpurs drops repeated points and out-and-back spurs: a point equal to
// the one two places before it is skipped, so A,B,A becomes A,B.
func removeSpurs(pts []feature.Position) []feature.Position {
	out := make([]feature.Position, 0, len(pts))
	for _, p := range pts {
		n := len(out)
		if n > 0 && out[n-1].Equal2D(p) {
			continue
		}
		if n > 1 && out[n-2].Equal2D(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// cleaned returns a copy of g with spurs removed from every point list.
func cleaned(g *feature.Geometry) *feature.Geometry {
	out := g.Clone()
	switch out.Type {
	case feature.LineString:
		out.Line = removeSpurs(out.Line)
	case feature.Polygon, feature.MultiLineString:
		for i := range out.Rings {
			out.Rings[i] = removeSpurs(out.Rings[i])
		}
	case feature.MultiPolygon:
		for i := range out.Polys {
			for j := range out.Polys[i] {
				out.Polys[i][j] = removeSpurs(out.Polys[i][j])
			}
		}
	}
	return out
}

func coords(pts []feature.Position) []geos.Coord {
	out := make([]geos.Coord, len(pts))
	for i, p := range pts {
		out[i] = geos.NewCoord(p.Lon(), p.Lat())
	}
	return out
}

func toGeosPolygon(rings [][]feature.Position) (*geos.Geometry, error) {
	if len(rings) == 0 {
		return nil, fmt.Errorf("polygon without rings")
	}
	holes := make([][]geos.Coord, 0, len(rings)-1)
	for _, r := range rings[1:] {
		holes = append(holes, coords(r))
	}
	return geos.NewPolygon(coords(rings[0]), holes...)
}

// toGeos projects g to 2-D and builds the GEOS geometry.
func toGeos(g *feature.Geometry) (*geos.Geometry, error) {
	switch g.Type {
	case feature.LineString:
		return geos.NewLineString(coords(g.Line)...)
	case feature.Polygon:
		return toGeosPolygon(g.Rings)
	case feature.MultiLineString:
		lines := make([]*geos.Geometry, 0, len(g.Rings))
		for _, l := range g.Rings {
			ls, err := geos.NewLineString(coords(l)...)
			if err != nil {
				return nil, err
			}
			lines = append(lines, ls)
		}
		return geos.NewCollection(geos.MULTILINESTRING, lines...)
	case feature.MultiPolygon:
		polys := make([]*geos.Geometry, 0, len(g.Polys))
		for _, rings := range g.Polys {
			p, err := toGeosPolygon(rings)
			if err != nil {
				return nil, err
			}
			polys = append(polys, p)
		}
		return geos.NewCollection(geos.MULTIPOLYGON, polys...)
	}
	return nil, fmt.Errorf("%s: %w", g.Type, ErrUnsupported)
}

// pieces flattens a GEOS result into line and polygon geometries. Points
// and empty parts are dropped.
func pieces(g *geos.Geometry) ([]*feature.Geometry, error) {
	empty, err := g.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	t, err := g.Type()
	if err != nil {
		return nil, err
	}

	switch t {
	case geos.LINESTRING, geos.LINEARRING:
		line, err := positions(g)
		if err != nil {
			return nil, err
		}
		return []*feature.Geometry{feature.NewLineString(line)}, nil
	case geos.POLYGON:
		rings, err := polyToRings(g)
		if err != nil {
			return nil, err
		}
		return []*feature.Geometry{feature.NewPolygon(rings...)}, nil
	case geos.MULTILINESTRING, geos.MULTIPOLYGON, geos.GEOMETRYCOLLECTION:
		n, err := g.NGeometry()
		if err != nil {
			return nil, err
		}
		var out []*feature.Geometry
		for i := 0; i < n; i++ {
			part, err := g.Geometry(i)
			if err != nil {
				return nil, err
			}
			ps, err := pieces(part)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	}
	return nil, nil
}

func positions(g *geos.Geometry) ([]feature.Position, error) {
	cs, err := g.Coords()
	if err != nil {
		return nil, err
	}
	out := make([]feature.Position, len(cs))
	for i, c := range cs {
		out[i] = feature.Position{c.X, c.Y}
	}
	return out, nil
}

func polyToRings(g *geos.Geometry) ([][]feature.Position, error) {
	shell, err := g.Shell()
	if err != nil {
		return nil, err
	}
	outer, err := positions(shell)
	if err != nil {
		return nil, err
	}

	holes, err := g.Holes()
	if err != nil {
		return nil, err
	}

	rings := make([][]feature.Position, len(holes)+1)
	rings[0] = outer
	for i, h := range holes {
		r, err := positions(h)
		if err != nil {
			return nil, err
		}
		rings[i+1] = r
	}
	return rings, nil
}
