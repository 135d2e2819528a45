// Package geometry edits cached map features with planar set operations.
//
// An operation takes a target and a cutter, each named by id, by title or
// given directly as a feature:
//
//	Cut     target minus cutter
//	Expand  target union cutter, in place, always a single geometry
//	Crop    target intersected with the cutter buffered by the tolerance
//
// The first resulting piece replaces the target's geometry. Cut and Crop
// may produce further pieces, which are created as sibling features titled
// "base:N". Coordinates are treated as planar lon/lat degrees; GEOS does the
// set operations, except for a line cut by a polygon, which is split by a
// direct segment walk so that self-crossing tracks keep their shape.
package geometry
