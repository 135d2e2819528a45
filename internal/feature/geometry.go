package feature

import (
	"encoding/json"
	"fmt"
)

// GeometryType is the GeoJSON geometry type name.
type GeometryType string

const (
	Point           GeometryType = "Point"
	LineString      GeometryType = "LineString"
	Polygon         GeometryType = "Polygon"
	MultiLineString GeometryType = "MultiLineString"
	MultiPolygon    GeometryType = "MultiPolygon"
)

// Position is lon, lat followed by optional trailing components
// (elevation, timestamp in ms).
type Position []float64

// Lon returns the first component.
func (p Position) Lon() float64 { return p[0] }

// Lat returns the second component.
func (p Position) Lat() float64 { return p[1] }

// Timestamp returns the trailing timestamp of a position that carries more
// than lon/lat. Track positions are lon, lat, elevation, time, so the last
// component is the time.
func (p Position) Timestamp() (float64, bool) {
	if len(p) < 3 {
		return 0, false
	}
	return p[len(p)-1], true
}

// Equal2D compares lon/lat only.
func (p Position) Equal2D(o Position) bool {
	return len(p) >= 2 && len(o) >= 2 && p[0] == o[0] && p[1] == o[1]
}

// Clone copies the position.
func (p Position) Clone() Position {
	if p == nil {
		return nil
	}
	out := make(Position, len(p))
	copy(out, p)
	return out
}

// Geometry is a GeoJSON geometry. Exactly one coordinate field is populated,
// selected by Type: Point uses Coord, LineString uses Line, Polygon and
// MultiLineString use Rings, MultiPolygon uses Polys. Unknown types keep
// their coordinates in Raw.
type Geometry struct {
	Type        GeometryType
	Coord       Position
	Line        []Position
	Rings       [][]Position
	Polys       [][][]Position
	Raw         json.RawMessage
	Incremental bool
}

type geometryJSON struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Incremental bool            `json:"incremental,omitempty"`
}

// NewPoint builds a Point geometry.
func NewPoint(p Position) *Geometry {
	return &Geometry{Type: Point, Coord: p}
}

// NewLineString builds a LineString geometry.
func NewLineString(pts []Position) *Geometry {
	return &Geometry{Type: LineString, Line: pts}
}

// NewPolygon builds a Polygon geometry from its rings, shell first.
func NewPolygon(rings ...[]Position) *Geometry {
	return &Geometry{Type: Polygon, Rings: rings}
}

// MarshalJSON implements json.Marshaler.
func (g Geometry) MarshalJSON() ([]byte, error) {
	var coords any
	switch g.Type {
	case Point:
		coords = g.Coord
	case LineString:
		coords = g.Line
	case Polygon, MultiLineString:
		coords = g.Rings
	case MultiPolygon:
		coords = g.Polys
	default:
		if g.Raw != nil {
			coords = g.Raw
		}
	}
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("marshal %s coordinates: %w", g.Type, err)
	}
	return json.Marshal(geometryJSON{Type: g.Type, Coordinates: raw, Incremental: g.Incremental})
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var aux geometryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*g = Geometry{Type: aux.Type, Incremental: aux.Incremental}
	if len(aux.Coordinates) == 0 || string(aux.Coordinates) == "null" {
		return nil
	}

	var err error
	switch aux.Type {
	case Point:
		err = json.Unmarshal(aux.Coordinates, &g.Coord)
	case LineString:
		err = json.Unmarshal(aux.Coordinates, &g.Line)
	case Polygon, MultiLineString:
		err = json.Unmarshal(aux.Coordinates, &g.Rings)
	case MultiPolygon:
		err = json.Unmarshal(aux.Coordinates, &g.Polys)
	default:
		g.Raw = append(json.RawMessage(nil), aux.Coordinates...)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s coordinates: %w", aux.Type, err)
	}
	return nil
}

// PointLists returns every list of positions in the geometry. The returned
// slices alias the geometry, so edits to their positions edit g.
func (g *Geometry) PointLists() [][]Position {
	if g == nil {
		return nil
	}
	switch g.Type {
	case Point:
		if g.Coord == nil {
			return nil
		}
		return [][]Position{{g.Coord}}
	case LineString:
		return [][]Position{g.Line}
	case Polygon, MultiLineString:
		return g.Rings
	case MultiPolygon:
		var out [][]Position
		for _, poly := range g.Polys {
			out = append(out, poly...)
		}
		return out
	}
	return nil
}

// Positions flattens PointLists.
func (g *Geometry) Positions() []Position {
	var out []Position
	for _, l := range g.PointLists() {
		out = append(out, l...)
	}
	return out
}

// NumPositions counts positions in all lists.
func (g *Geometry) NumPositions() int {
	n := 0
	for _, l := range g.PointLists() {
		n += len(l)
	}
	return n
}

// Clone returns a deep copy.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	out := &Geometry{
		Type:        g.Type,
		Coord:       g.Coord.Clone(),
		Line:        clonePositions(g.Line),
		Incremental: g.Incremental,
	}
	if g.Rings != nil {
		out.Rings = make([][]Position, len(g.Rings))
		for i, r := range g.Rings {
			out.Rings[i] = clonePositions(r)
		}
	}
	if g.Polys != nil {
		out.Polys = make([][][]Position, len(g.Polys))
		for i, poly := range g.Polys {
			out.Polys[i] = make([][]Position, len(poly))
			for j, r := range poly {
				out.Polys[i][j] = clonePositions(r)
			}
		}
	}
	if g.Raw != nil {
		out.Raw = append(json.RawMessage(nil), g.Raw...)
	}
	return out
}

func clonePositions(pts []Position) []Position {
	if pts == nil {
		return nil
	}
	out := make([]Position, len(pts))
	for i, p := range pts {
		out[i] = p.Clone()
	}
	return out
}
