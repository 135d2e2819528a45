package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/geometry"
	"github.com/roach88/mapsync/internal/session"
)

// serverPrefix marks actions performed by "another client" directly on the
// fake server.
const serverPrefix = "server."

// actionFunc performs one step and returns its completion result.
type actionFunc func(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error)

// actions is every step a scenario can name.
var actions = map[string]actionFunc{
	"server.put":    serverPut,
	"server.remove": serverRemove,
	"server.fail":   serverFail,
	"server.deny":   serverDeny,

	"refresh": refresh,
	"marker":  addMarker,
	"line":    addLine,
	"polygon": addPolygon,
	"folder":  addFolder,
	"edit":    editFeature,
	"delete":  deleteFeature,

	"cut":    geometryAction((*geometry.Engine).Cut),
	"expand": geometryAction((*geometry.Engine).Expand),
	"crop":   geometryAction((*geometry.Engine).Crop),
}

// argError means the scenario itself is malformed.
type argError struct {
	key string
	msg string
}

func (e *argError) Error() string {
	return fmt.Sprintf("arg %q: %s", e.key, e.msg)
}

func serverPut(_ context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, err := argString(args, "id")
	if err != nil {
		return nil, err
	}
	class := feature.ClassMarker
	if c, ok := args["class"]; ok {
		s, ok := c.(string)
		if !ok {
			return nil, &argError{key: "class", msg: "must be a string"}
		}
		class = feature.Class(s)
	}
	title, err := argString(args, "title")
	if err != nil {
		return nil, err
	}
	g, err := argGeometry(args)
	if err != nil {
		return nil, err
	}
	props, err := argMap(args, "properties")
	if err != nil {
		return nil, err
	}

	f := feature.New(id, class, title, g)
	for k, v := range props {
		f.Properties[k] = v
	}
	h.srv.Put(f)
	return nil, nil
}

func serverRemove(_ context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, err := argString(args, "id")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"removed": h.srv.Remove(id)}, nil
}

func serverFail(_ context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	count, err := argInt(args, "count")
	if err != nil {
		return nil, err
	}
	status, err := argInt(args, "status")
	if err != nil {
		return nil, err
	}
	h.srv.FailNext(count, status)
	return nil, nil
}

func serverDeny(_ context.Context, h *Harness, _ map[string]interface{}) (map[string]interface{}, error) {
	h.srv.Deny()
	return nil, nil
}

func refresh(ctx context.Context, h *Harness, _ map[string]interface{}) (map[string]interface{}, error) {
	if err := h.sess.Refresh(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"features": h.sess.Cache().Len()}, nil
}

func created(res session.Result, err error) (map[string]interface{}, error) {
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": res.ID()}, nil
}

func addMarker(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	title, err := argString(args, "title")
	if err != nil {
		return nil, err
	}
	lon, err := argFloat(args, "lon")
	if err != nil {
		return nil, err
	}
	lat, err := argFloat(args, "lat")
	if err != nil {
		return nil, err
	}
	props, err := argMap(args, "properties")
	if err != nil {
		return nil, err
	}
	var opts []session.SendOption
	if props != nil {
		opts = append(opts, session.WithProperties(props))
	}
	return created(h.sess.AddMarker(ctx, title, lon, lat, opts...))
}

func addLine(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	title, err := argString(args, "title")
	if err != nil {
		return nil, err
	}
	pts, err := argPositions(args, "points")
	if err != nil {
		return nil, err
	}
	return created(h.sess.AddLine(ctx, title, pts))
}

func addPolygon(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	title, err := argString(args, "title")
	if err != nil {
		return nil, err
	}
	ring, err := argPositions(args, "ring")
	if err != nil {
		return nil, err
	}
	return created(h.sess.AddPolygon(ctx, title, ring))
}

func addFolder(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	title, err := argString(args, "title")
	if err != nil {
		return nil, err
	}
	return created(h.sess.AddFolder(ctx, title))
}

func editFeature(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, err := argString(args, "id")
	if err != nil {
		return nil, err
	}
	class, err := argString(args, "class")
	if err != nil {
		return nil, err
	}
	props, err := argMap(args, "properties")
	if err != nil {
		return nil, err
	}
	var g *feature.Geometry
	if hasGeometry(args) {
		if g, err = argGeometry(args); err != nil {
			return nil, err
		}
	}
	if _, err := h.sess.EditFeature(ctx, id, feature.Class(class), props, g); err != nil {
		return nil, err
	}
	return nil, nil
}

func deleteFeature(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, err := argString(args, "id")
	if err != nil {
		return nil, err
	}
	class, err := argString(args, "class")
	if err != nil {
		return nil, err
	}
	if _, err := h.sess.DelFeature(ctx, id, feature.Class(class)); err != nil {
		return nil, err
	}
	return nil, nil
}

type geometryFunc func(e *geometry.Engine, ctx context.Context, target, cutter geometry.Operand, opts ...geometry.OpOption) (geometry.Result, error)

// geometryAction adapts a geometry operation. Operands are titles, or ids
// when written as "id:<id>".
func geometryAction(run geometryFunc) actionFunc {
	return func(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
		target, err := argString(args, "target")
		if err != nil {
			return nil, err
		}
		cutter, err := argString(args, "cutter")
		if err != nil {
			return nil, err
		}
		var opts []geometry.OpOption
		if fourify, err := argBool(args, "fourify"); err != nil {
			return nil, err
		} else if fourify {
			opts = append(opts, geometry.Fourify())
		}
		if dry, err := argBool(args, "dry_run"); err != nil {
			return nil, err
		} else if dry {
			opts = append(opts, geometry.ComputeOnly())
		}

		res, err := run(h.geo, ctx, operand(target), operand(cutter), opts...)
		if err != nil {
			return nil, err
		}
		points := make([]interface{}, len(res.Pieces))
		for i, p := range res.Pieces {
			points[i] = p.NumPositions()
		}
		siblings := make([]interface{}, len(res.Siblings))
		for i, s := range res.Siblings {
			siblings[i] = s.ID
		}
		return map[string]interface{}{
			"pieces":   len(res.Pieces),
			"points":   points,
			"siblings": siblings,
		}, nil
	}
}

func operand(s string) geometry.Operand {
	if id, ok := strings.CutPrefix(s, "id:"); ok {
		return geometry.ByID(id)
	}
	return geometry.ByTitle(s)
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", &argError{key: key, msg: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &argError{key: key, msg: fmt.Sprintf("must be a string, got %T", v)}
	}
	return s, nil
}

func argFloat(args map[string]interface{}, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, &argError{key: key, msg: "is required"}
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, &argError{key: key, msg: fmt.Sprintf("must be a number, got %T", v)}
	}
	return f, nil
}

func argInt(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, &argError{key: key, msg: "is required"}
	}
	n, ok := v.(int)
	if !ok {
		return 0, &argError{key: key, msg: fmt.Sprintf("must be an integer, got %T", v)}
	}
	return n, nil
}

// argBool returns false for a missing key.
func argBool(args map[string]interface{}, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &argError{key: key, msg: fmt.Sprintf("must be a boolean, got %T", v)}
	}
	return b, nil
}

// argMap returns nil for a missing key.
func argMap(args map[string]interface{}, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, &argError{key: key, msg: fmt.Sprintf("must be a mapping, got %T", v)}
	}
	return feature.CloneProperties(m), nil
}

func argPosition(key string, v interface{}) (feature.Position, error) {
	list, ok := v.([]interface{})
	if !ok || len(list) < 2 {
		return nil, &argError{key: key, msg: "positions are [lon, lat] lists"}
	}
	p := make(feature.Position, len(list))
	for i, c := range list {
		f, ok := toFloat(c)
		if !ok {
			return nil, &argError{key: key, msg: fmt.Sprintf("coordinate %v is not a number", c)}
		}
		p[i] = f
	}
	return p, nil
}

func argPositions(args map[string]interface{}, key string) ([]feature.Position, error) {
	v, ok := args[key]
	if !ok {
		return nil, &argError{key: key, msg: "is required"}
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, &argError{key: key, msg: "must be a list of positions"}
	}
	pts := make([]feature.Position, len(list))
	for i, item := range list {
		p, err := argPosition(key, item)
		if err != nil {
			return nil, err
		}
		pts[i] = p
	}
	return pts, nil
}

var geometryKeys = []string{"point", "line", "polygon"}

func hasGeometry(args map[string]interface{}) bool {
	for _, k := range geometryKeys {
		if _, ok := args[k]; ok {
			return true
		}
	}
	return false
}

// argGeometry reads exactly one of point, line or polygon. None at all
// yields a feature without geometry.
func argGeometry(args map[string]interface{}) (*feature.Geometry, error) {
	var found []string
	for _, k := range geometryKeys {
		if _, ok := args[k]; ok {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, &argError{key: strings.Join(found, ","), msg: "only one geometry may be given"}
	}

	switch found[0] {
	case "point":
		p, err := argPosition("point", args["point"])
		if err != nil {
			return nil, err
		}
		return feature.NewPoint(p), nil
	case "line":
		pts, err := argPositions(args, "line")
		if err != nil {
			return nil, err
		}
		return feature.NewLineString(pts), nil
	default:
		ring, err := argPositions(args, "polygon")
		if err != nil {
			return nil, err
		}
		return feature.NewPolygon(ring), nil
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
