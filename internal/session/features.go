package session

import (
	"context"
	"net/http"

	"github.com/roach88/mapsync/internal/feature"
)

// AddFeature creates f on the server under its class endpoint. The id of f
// is ignored; a blocking send returns the new id in Result.ID().
func (s *Session) AddFeature(ctx context.Context, f *feature.Feature, opts ...SendOption) (Result, error) {
	class := f.Class()
	if class == "" {
		return Result{}, newError(ErrCodeUsage, "feature has no class", nil)
	}
	req := Request{
		Method:   http.MethodPost,
		Endpoint: string(class),
		Body: &Payload{
			Properties: feature.CloneProperties(f.Properties),
			Geometry:   f.Geometry,
		},
		Return: ReturnResultID,
	}
	return s.send(ctx, req, opts)
}

// AddMarker creates a marker at lon, lat.
func (s *Session) AddMarker(ctx context.Context, title string, lon, lat float64, opts ...SendOption) (Result, error) {
	f := feature.New("", feature.ClassMarker, title, feature.NewPoint(feature.Position{lon, lat}))
	return s.AddFeature(ctx, f, opts...)
}

// AddLine creates a line shape.
func (s *Session) AddLine(ctx context.Context, title string, pts []feature.Position, opts ...SendOption) (Result, error) {
	if len(pts) < 2 {
		return Result{}, newError(ErrCodeUsage, "a line needs at least two points", nil)
	}
	f := feature.New("", feature.ClassShape, title, feature.NewLineString(pts))
	return s.AddFeature(ctx, f, opts...)
}

// AddPolygon creates a polygon shape from one ring. The ring is closed if
// its last point does not repeat the first.
func (s *Session) AddPolygon(ctx context.Context, title string, ring []feature.Position, opts ...SendOption) (Result, error) {
	if len(ring) < 3 {
		return Result{}, newError(ErrCodeUsage, "a polygon needs at least three points", nil)
	}
	if !ring[0].Equal2D(ring[len(ring)-1]) {
		ring = append(ring[:len(ring):len(ring)], ring[0].Clone())
	}
	f := feature.New("", feature.ClassShape, title, feature.NewPolygon(ring))
	return s.AddFeature(ctx, f, opts...)
}

// AddFolder creates a folder.
func (s *Session) AddFolder(ctx context.Context, title string, opts ...SendOption) (Result, error) {
	return s.AddFeature(ctx, feature.New("", feature.ClassFolder, title, nil), opts...)
}

// EditFeature updates an existing feature. props are merged over the
// cached properties so the edit carries a title; g, when non-nil, replaces
// the geometry. At least one of them must be given.
func (s *Session) EditFeature(ctx context.Context, id string, class feature.Class, props map[string]any, g *feature.Geometry, opts ...SendOption) (Result, error) {
	if id == "" || class == "" {
		return Result{}, newError(ErrCodeUsage, "edit needs an id and a class", nil)
	}
	if props == nil && g == nil {
		return Result{}, newError(ErrCodeUsage, "nothing to edit", nil)
	}

	body := &Payload{ID: id, Geometry: g}
	if props != nil {
		merged := map[string]any{}
		if cur, ok := s.cache.Get(id, class); ok {
			merged = cur.Properties
		}
		for k, v := range props {
			merged[k] = v
		}
		merged["class"] = string(class)
		body.Properties = merged
	}

	req := Request{
		Method:   http.MethodPost,
		Endpoint: string(class),
		ID:       id,
		Body:     body,
		Return:   ReturnResultID,
	}
	return s.send(ctx, req, opts)
}

// DelFeature deletes a feature.
func (s *Session) DelFeature(ctx context.Context, id string, class feature.Class, opts ...SendOption) (Result, error) {
	if id == "" || class == "" {
		return Result{}, newError(ErrCodeUsage, "delete needs an id and a class", nil)
	}
	req := Request{
		Method:   http.MethodDelete,
		Endpoint: string(class),
		ID:       id,
	}
	return s.send(ctx, req, opts)
}

// GetFeature returns a cached feature by id.
func (s *Session) GetFeature(id string) (*feature.Feature, bool) {
	return s.cache.Lookup(id)
}

// GetFeatures returns cached features of a class, optionally only those
// whose title matches. An empty class matches every class.
func (s *Session) GetFeatures(class feature.Class, title string) []*feature.Feature {
	var fs []*feature.Feature
	if class == "" {
		fs = s.cache.Features()
	} else {
		fs = s.cache.Features(class)
	}
	if title == "" {
		return fs
	}
	out := fs[:0]
	for _, f := range fs {
		if feature.SameTitle(f.Title(), title) {
			out = append(out, f)
		}
	}
	return out
}

// CreateMap creates a new map in the configured account and returns its
// id. It is always blocking.
func (s *Session) CreateMap(ctx context.Context, title string, opts ...SendOption) (string, error) {
	if s.cfg.AccountID == "" {
		return "", newError(ErrCodeConfig, "map creation needs an account id", nil)
	}
	req := Request{
		Method:   http.MethodPost,
		Endpoint: "api/v1/acct/" + s.cfg.AccountID + "/CollaborativeMap",
		Body: &Payload{Properties: map[string]any{
			"title":   title,
			"mode":    "cal",
			"sharing": "SECRET",
		}},
		Return: ReturnResultID,
	}
	opts = append(opts, Blocking())
	res, err := s.send(ctx, req, opts)
	if err != nil {
		return "", err
	}
	return res.ID(), nil
}

func (s *Session) send(ctx context.Context, req Request, opts []SendOption) (Result, error) {
	for _, opt := range opts {
		opt(&req)
	}
	return s.Send(ctx, req)
}
