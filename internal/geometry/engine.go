package geometry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulsmith/gogeos/geos"

	"github.com/roach88/mapsync/internal/cache"
	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/session"
)

// DefaultTolerance is the buffer, in degrees, applied to cutters where an
// operation needs an area: lines subtracted from polygons and every crop.
const DefaultTolerance = 0.0001

// Editor is the part of a session the engine needs. *session.Session
// implements it.
type Editor interface {
	Cache() *cache.Cache
	AddFeature(ctx context.Context, f *feature.Feature, opts ...session.SendOption) (session.Result, error)
	EditFeature(ctx context.Context, id string, class feature.Class, props map[string]any, g *feature.Geometry, opts ...session.SendOption) (session.Result, error)
}

// Engine runs geometry operations against a session's cache.
type Engine struct {
	ed        Editor
	log       *slog.Logger
	tolerance float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTolerance overrides DefaultTolerance.
func WithTolerance(deg float64) Option {
	return func(e *Engine) { e.tolerance = deg }
}

// New returns an engine editing through ed.
func New(ed Editor, opts ...Option) *Engine {
	e := &Engine{
		ed:        ed,
		log:       slog.Default(),
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpOption adjusts one operation.
type OpOption func(*opConfig)

type opConfig struct {
	fourify     bool
	computeOnly bool
	send        []session.SendOption
}

// Fourify restores elevation and time components on result vertices.
func Fourify() OpOption {
	return func(c *opConfig) { c.fourify = true }
}

// ComputeOnly returns the result without touching the cache or the server.
func ComputeOnly() OpOption {
	return func(c *opConfig) { c.computeOnly = true }
}

// WithSendOptions passes options to the edit and create requests.
func WithSendOptions(opts ...session.SendOption) OpOption {
	return func(c *opConfig) { c.send = append(c.send, opts...) }
}

// Result is the outcome of an operation.
type Result struct {
	// Pieces are the result geometries, first piece first.
	Pieces []*feature.Geometry
	// Target is the target with its new geometry.
	Target *feature.Feature
	// Siblings are the features created for the remaining pieces. Their ids
	// are empty when the creates were queued.
	Siblings []*feature.Feature
}

// Coords returns every point list of every piece.
func (r Result) Coords() [][]feature.Position {
	var out [][]feature.Position
	for _, p := range r.Pieces {
		out = append(out, p.PointLists()...)
	}
	return out
}

type opKind int

const (
	opCut opKind = iota
	opExpand
	opCrop
)

func (k opKind) String() string {
	switch k {
	case opCut:
		return "cut"
	case opExpand:
		return "expand"
	}
	return "crop"
}

// Cut subtracts cutter from target. The first piece replaces the target;
// the rest become siblings.
func (e *Engine) Cut(ctx context.Context, target, cutter Operand, opts ...OpOption) (Result, error) {
	return e.run(ctx, opCut, target, cutter, opts)
}

// Expand merges cutter into target. The union must be a single line or
// polygon; it replaces the target and no siblings are created.
func (e *Engine) Expand(ctx context.Context, target, cutter Operand, opts ...OpOption) (Result, error) {
	return e.run(ctx, opExpand, target, cutter, opts)
}

// Crop keeps the part of target within the tolerance of cutter.
func (e *Engine) Crop(ctx context.Context, target, cutter Operand, opts ...OpOption) (Result, error) {
	return e.run(ctx, opCrop, target, cutter, opts)
}

func (e *Engine) run(ctx context.Context, kind opKind, targetOp, cutterOp Operand, opts []OpOption) (Result, error) {
	var cfg opConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	target, err := e.resolve(targetOp)
	if err != nil {
		return Result{}, fmt.Errorf("%s target: %w", kind, err)
	}
	cutter, err := e.resolve(cutterOp)
	if err != nil {
		return Result{}, fmt.Errorf("%s cutter: %w", kind, err)
	}

	tg, cg := cleaned(target.Geometry), cleaned(cutter.Geometry)

	out, err := e.compute(kind, tg, cg)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s by %s: %w", kind, targetOp, cutterOp, err)
	}
	if cfg.fourify {
		for _, p := range out {
			fourify(p, target.Geometry)
		}
	}

	e.log.Debug("geometry operation computed",
		"op", kind.String(),
		"target", target.ID,
		"cutter", cutter.ID,
		"pieces", len(out),
	)

	res := Result{Pieces: out}
	updated := target.Clone()
	updated.Geometry = out[0]
	res.Target = updated
	if cfg.computeOnly {
		return res, nil
	}

	if _, err := e.ed.EditFeature(ctx, target.ID, target.Class(), nil, out[0], cfg.send...); err != nil {
		return res, fmt.Errorf("%s: update target: %w", kind, err)
	}

	if len(out) > 1 {
		siblings, err := e.createSiblings(ctx, target, out[1:], cfg.send)
		res.Siblings = siblings
		if err != nil {
			return res, fmt.Errorf("%s: %w", kind, err)
		}
	}
	return res, nil
}

// compute runs the set operation on cleaned geometries.
func (e *Engine) compute(kind opKind, tg, cg *feature.Geometry) ([]*feature.Geometry, error) {
	if kind == opCut && isLinear(tg) && isAreal(cg) {
		return e.cutLine(tg, cg)
	}

	t, err := toGeos(tg)
	if err != nil {
		return nil, err
	}
	c, err := toGeos(cg)
	if err != nil {
		return nil, err
	}

	hit, err := t.Intersects(c)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, ErrNoIntersection
	}

	var result *geos.Geometry
	switch kind {
	case opCut:
		if isAreal(tg) && isLinear(cg) {
			if c, err = c.Buffer(e.tolerance); err != nil {
				return nil, err
			}
		}
		result, err = t.Difference(c)
	case opExpand:
		result, err = e.union(tg, cg, t, c)
	case opCrop:
		var zone *geos.Geometry
		if zone, err = c.Buffer(e.tolerance); err != nil {
			return nil, err
		}
		result, err = t.Intersection(zone)
	}
	if err != nil {
		return nil, err
	}

	out, err := pieces(result)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	if kind == opExpand && len(out) != 1 {
		return nil, ErrNotSingle
	}
	return out, nil
}

func (e *Engine) union(tg, cg *feature.Geometry, t, c *geos.Geometry) (*geos.Geometry, error) {
	switch {
	case isAreal(tg) && isAreal(cg):
		return t.Union(c)
	case isLinear(tg) && isLinear(cg):
		u, err := t.Union(c)
		if err != nil {
			return nil, err
		}
		return u.LineMerge()
	}
	return nil, ErrUnsupported
}

func (e *Engine) cutLine(tg, cg *feature.Geometry) ([]*feature.Geometry, error) {
	var polys [][][]feature.Position
	if cg.Type == feature.Polygon {
		polys = [][][]feature.Position{cg.Rings}
	} else {
		polys = cg.Polys
	}

	var lines [][]feature.Position
	if tg.Type == feature.LineString {
		lines = [][]feature.Position{tg.Line}
	} else {
		lines = tg.Rings
	}

	var (
		out     []*feature.Geometry
		crossed bool
	)
	for _, l := range lines {
		runs, hit := cutLineByPolygons(l, polys)
		crossed = crossed || hit
		for _, r := range runs {
			out = append(out, feature.NewLineString(r))
		}
	}
	if !crossed {
		return nil, ErrNoIntersection
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

func (e *Engine) createSiblings(ctx context.Context, target *feature.Feature, rest []*feature.Geometry, send []session.SendOption) ([]*feature.Feature, error) {
	class := target.Class()
	titles := siblingTitles(baseTitle(target.Title()), e.ed.Cache().Titles(class), len(rest))

	siblings := make([]*feature.Feature, 0, len(rest))
	for i, g := range rest {
		f := &feature.Feature{
			Type:       "Feature",
			Properties: feature.CloneProperties(target.Properties),
			Geometry:   g,
		}
		f.SetTitle(titles[i])

		res, err := e.ed.AddFeature(ctx, f, send...)
		if err != nil {
			return siblings, fmt.Errorf("create sibling %q: %w", titles[i], err)
		}
		f.ID = res.ID()
		siblings = append(siblings, f)
		e.log.Info("created sibling", "title", titles[i], "id", f.ID, "of", target.ID)
	}
	return siblings, nil
}

func isLinear(g *feature.Geometry) bool {
	return g.Type == feature.LineString || g.Type == feature.MultiLineString
}

func isAreal(g *feature.Geometry) bool {
	return g.Type == feature.Polygon || g.Type == feature.MultiPolygon
}
