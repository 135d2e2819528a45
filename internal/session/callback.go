package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg is a callback argument: either a literal or a field of the response
// body, resolved when the response arrives.
type Arg interface {
	resolve(body map[string]any) (any, error)
}

// Literal is an argument with a fixed value.
type Literal struct {
	Value any
}

func (l Literal) resolve(map[string]any) (any, error) {
	return l.Value, nil
}

// ResponseField is an argument read from the response body by dotted path,
// for example "result.id" or "result.features.0.id".
type ResponseField struct {
	Path string
}

func (f ResponseField) resolve(body map[string]any) (any, error) {
	return lookupPath(body, f.Path)
}

// Lit is shorthand for Literal{v}.
func Lit(v any) Literal { return Literal{Value: v} }

// Field is shorthand for ResponseField{path}.
func Field(path string) ResponseField { return ResponseField{Path: path} }

// Callback is an action run after a successful response, in order with the
// other callbacks of the same request.
type Callback struct {
	Name   string
	Fn     func(args []any, kwargs map[string]any) error
	Args   []Arg
	Kwargs map[string]Arg
}

type resolvedCallback struct {
	cb     Callback
	args   []any
	kwargs map[string]any
}

func (cb Callback) resolve(body map[string]any) (resolvedCallback, error) {
	r := resolvedCallback{cb: cb, args: make([]any, len(cb.Args))}
	for i, a := range cb.Args {
		v, err := a.resolve(body)
		if err != nil {
			return r, fmt.Errorf("arg %d: %w", i, err)
		}
		r.args[i] = v
	}
	if len(cb.Kwargs) > 0 {
		r.kwargs = make(map[string]any, len(cb.Kwargs))
		for k, a := range cb.Kwargs {
			v, err := a.resolve(body)
			if err != nil {
				return r, fmt.Errorf("kwarg %q: %w", k, err)
			}
			r.kwargs[k] = v
		}
	}
	return r, nil
}

// call runs the callback, converting a panic into an error.
func (r resolvedCallback) call() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panicked: %v", p)
		}
	}()
	if r.cb.Fn == nil {
		return nil
	}
	return r.cb.Fn(r.args, r.kwargs)
}

// lookupPath walks a decoded JSON value. Numeric segments index arrays.
func lookupPath(body map[string]any, path string) (any, error) {
	var cur any = body
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("response field %q: no key %q", path, seg)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("response field %q: bad index %q", path, seg)
			}
			cur = v[i]
		default:
			return nil, fmt.Errorf("response field %q: %q is not a container", path, seg)
		}
	}
	return cur, nil
}
