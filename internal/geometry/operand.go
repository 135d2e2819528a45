package geometry

import (
	"fmt"

	"github.com/roach88/mapsync/internal/feature"
)

// Operand names a feature by id, by title, or directly. Exactly one field
// should be set; Feature wins over ID, ID over Title.
type Operand struct {
	ID      string
	Title   string
	Feature *feature.Feature
}

// ByID names a cached feature by id.
func ByID(id string) Operand { return Operand{ID: id} }

// ByTitle names a cached feature by title. Folders and operational periods
// are never matched.
func ByTitle(title string) Operand { return Operand{Title: title} }

// Of uses f as-is.
func Of(f *feature.Feature) Operand { return Operand{Feature: f} }

func (o Operand) String() string {
	switch {
	case o.Feature != nil:
		return fmt.Sprintf("feature %q", o.Feature.ID)
	case o.ID != "":
		return fmt.Sprintf("id %q", o.ID)
	}
	return fmt.Sprintf("title %q", o.Title)
}

// resolve returns a private copy of the operand's feature, which must be a
// line or polygon.
func (e *Engine) resolve(o Operand) (*feature.Feature, error) {
	f, err := e.resolveAny(o)
	if err != nil {
		return nil, err
	}
	switch f.Geometry.Type {
	case feature.LineString, feature.Polygon, feature.MultiLineString, feature.MultiPolygon:
		return f, nil
	}
	return nil, fmt.Errorf("%s is a %s: %w", o, f.Geometry.Type, ErrNotGeometric)
}

// resolveAny accepts any feature with a geometry, markers included.
func (e *Engine) resolveAny(o Operand) (*feature.Feature, error) {
	var f *feature.Feature
	switch {
	case o.Feature != nil:
		f = o.Feature.Clone()
	case o.ID != "":
		found, ok := e.ed.Cache().Lookup(o.ID)
		if !ok {
			return nil, fmt.Errorf("%s: %w", o, ErrNotFound)
		}
		f = found
	default:
		matches := e.ed.Cache().FindByTitle(o.Title, feature.Class.Geometric)
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("%s: %w", o, ErrNotFound)
		case 1:
			f = matches[0]
		default:
			return nil, fmt.Errorf("%s: %d matches: %w", o, len(matches), ErrAmbiguous)
		}
	}

	if !f.Class().Geometric() || f.Geometry == nil {
		return nil, fmt.Errorf("%s: %w", o, ErrNotGeometric)
	}
	return f, nil
}
