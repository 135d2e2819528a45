package session

import (
	"log/slog"
	"math"

	"github.com/roach88/mapsync/internal/feature"
)

// CoordCheck selects how outgoing geometries are validated for swapped
// lon/lat.
type CoordCheck int

const (
	// CoordCheckOff sends geometries unchanged.
	CoordCheckOff CoordCheck = iota
	// CoordCheckWarn logs suspicious geometries but sends them unchanged.
	CoordCheckWarn
	// CoordCheckModify transposes point lists whose points are all swapped
	// and aborts the send when one list mixes swapped and valid points.
	CoordCheckModify
)

// ParseCoordCheck maps a config string to a mode.
func ParseCoordCheck(s string) (CoordCheck, bool) {
	switch s {
	case "", "off":
		return CoordCheckOff, true
	case "warn":
		return CoordCheckWarn, true
	case "modify":
		return CoordCheckModify, true
	}
	return CoordCheckOff, false
}

type pointKind int

const (
	pointAmbiguous pointKind = iota
	pointSwapped
	pointValid
)

// classifyPoint: a latitude beyond ±90 can only be a longitude, while a
// longitude in 90..180 with an in-range latitude can only be lon/lat.
// Everything else could be either.
func classifyPoint(p feature.Position) pointKind {
	if len(p) < 2 {
		return pointAmbiguous
	}
	lon, lat := math.Abs(p[0]), math.Abs(p[1])
	switch {
	case lat > 90:
		return pointSwapped
	case lon >= 90 && lon <= 180:
		return pointValid
	}
	return pointAmbiguous
}

// checkCoordinates validates g in place according to mode, one point list
// at a time. It reports whether any list was transposed. A mixed list
// aborts before anything is modified.
func checkCoordinates(g *feature.Geometry, mode CoordCheck, log *slog.Logger) (bool, error) {
	if g == nil || mode == CoordCheckOff {
		return false, nil
	}

	var flip [][]feature.Position
	for i, list := range g.PointLists() {
		var swapped, valid int
		for _, p := range list {
			switch classifyPoint(p) {
			case pointSwapped:
				swapped++
			case pointValid:
				valid++
			}
		}
		if swapped == 0 {
			continue
		}

		if valid > 0 {
			log.Warn("point list mixes swapped and valid points",
				"type", g.Type,
				"list", i,
				"swapped", swapped,
				"valid", valid,
				"points", len(list),
			)
			if mode == CoordCheckModify {
				return false, newError(ErrCodeAmbiguousCoords, "geometry mixes swapped and valid points", nil)
			}
			continue
		}

		if mode != CoordCheckModify {
			log.Warn("point list appears to have lat/lon swapped", "type", g.Type, "list", i, "points", len(list))
			continue
		}
		flip = append(flip, list)
	}

	for _, list := range flip {
		for _, p := range list {
			if len(p) >= 2 {
				p[0], p[1] = p[1], p[0]
			}
		}
	}
	if len(flip) > 0 {
		log.Info("transposed swapped lat/lon", "type", g.Type, "lists", len(flip))
	}
	return len(flip) > 0, nil
}
