// Package feature defines the map object model shared by the cache, the
// session and the geometry engine.
//
// A Feature is one map object: a marker, a line or polygon shape, a folder,
// an assignment and so on. Its class travels on the wire inside
// properties.class, and its geometry is GeoJSON-shaped with one extension:
// positions may carry trailing components after lon/lat (elevation, then a
// millisecond timestamp), and a geometry may be flagged incremental so that
// only newly appended track points need to be merged.
//
// Positions are always ordered lon, lat. Code that needs the trailing
// timestamp of a position uses Position.Timestamp.
package feature
