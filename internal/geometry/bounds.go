package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Padding grows a bounding box. Degrees is added on every side; Percent is
// a percentage of the larger of the box's width and height, also added on
// every side. Both may be set.
type Padding struct {
	Degrees float64
	Percent float64
}

// Bounds returns the box covering every operand, padded.
func (e *Engine) Bounds(pad Padding, ops ...Operand) (orb.Bound, error) {
	if len(ops) == 0 {
		return orb.Bound{}, fmt.Errorf("bounds: no operands: %w", ErrNotFound)
	}

	var (
		b     orb.Bound
		first = true
	)
	for _, op := range ops {
		f, err := e.resolveAny(op)
		if err != nil {
			return orb.Bound{}, err
		}
		for _, p := range f.Geometry.Positions() {
			pt := orb.Point{p.Lon(), p.Lat()}
			if first {
				b = pt.Bound()
				first = false
				continue
			}
			b = b.Extend(pt)
		}
	}
	if first {
		return orb.Bound{}, fmt.Errorf("bounds: operands have no positions: %w", ErrNotGeometric)
	}

	d := pad.Degrees
	if pad.Percent != 0 {
		d += math.Max(b.Right()-b.Left(), b.Top()-b.Bottom()) * pad.Percent / 100
	}
	if d != 0 {
		b = b.Pad(d)
	}
	return b, nil
}
