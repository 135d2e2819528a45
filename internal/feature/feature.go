package feature

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Class names a kind of map object. Values match the server's class names
// and its endpoint names under API v1.
type Class string

const (
	ClassMarker            Class = "Marker"
	ClassShape             Class = "Shape"
	ClassFolder            Class = "Folder"
	ClassAssignment        Class = "Assignment"
	ClassOperationalPeriod Class = "OperationalPeriod"
	ClassLiveTrack         Class = "LiveTrack"
	ClassAppTrack          Class = "AppTrack"
	ClassClue              Class = "Clue"
	ClassSubject           Class = "Subject"
	ClassMapMediaObject    Class = "MapMediaObject"
)

// Geometric reports whether features of this class carry a geometry that
// the geometry engine can operate on.
func (c Class) Geometric() bool {
	switch c {
	case ClassFolder, ClassOperationalPeriod, "":
		return false
	}
	return true
}

// Feature is one map object.
type Feature struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry,omitempty"`
}

// New returns a feature of the given class with a title and geometry.
func New(id string, class Class, title string, g *Geometry) *Feature {
	return &Feature{
		ID:   id,
		Type: "Feature",
		Properties: map[string]any{
			"class": string(class),
			"title": title,
		},
		Geometry: g,
	}
}

// Class returns properties.class.
func (f *Feature) Class() Class {
	if f == nil || f.Properties == nil {
		return ""
	}
	s, _ := f.Properties["class"].(string)
	return Class(s)
}

// Title returns properties.title, or "" when absent.
func (f *Feature) Title() string {
	if f == nil || f.Properties == nil {
		return ""
	}
	s, _ := f.Properties["title"].(string)
	return s
}

// HasTitle reports whether the properties carry a title key at all.
func (f *Feature) HasTitle() bool {
	if f == nil || f.Properties == nil {
		return false
	}
	_, ok := f.Properties["title"]
	return ok
}

// SetTitle sets properties.title.
func (f *Feature) SetTitle(title string) {
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	f.Properties["title"] = title
}

// Clone returns a deep copy of f.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	out := &Feature{
		ID:         f.ID,
		Type:       f.Type,
		Properties: CloneProperties(f.Properties),
	}
	if f.Geometry != nil {
		out.Geometry = f.Geometry.Clone()
	}
	return out
}

// CloneProperties deep-copies a decoded JSON property map.
func CloneProperties(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneProperties(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// NormalizeTitle returns the form used to compare titles: NFC-normalized
// with surrounding whitespace removed.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// SameTitle compares two titles after normalization.
func SameTitle(a, b string) bool {
	return NormalizeTitle(a) == NormalizeTitle(b)
}
