// Package harness runs scripted map sessions against the fake map server
// and checks what the session did.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: marker_lifecycle
//	description: "A created marker survives a poll and can be deleted"
//	setup:
//	  - action: server.put
//	    args: { id: A, class: Marker, title: alpha, point: [-120.5, 39.1] }
//	flow:
//	  - invoke: refresh
//	    args: {}
//	  - invoke: marker
//	    args: { title: IC, lon: -120.1, lat: 39.3 }
//	    expect:
//	      case: OK
//	      result: { id: F0001 }
//	assertions:
//	  - type: trace_contains
//	    action: new
//	    args: { id: A }
//	  - type: final_state
//	    table: server
//	    where: { id: F0001 }
//	    expect: { title: IC, geometry: Point }
//
// Actions prefixed with "server." act on the server as another client
// would (put, remove, fail, deny). The rest drive the session: refresh,
// marker, line, polygon, folder, edit, delete, cut, expand and crop.
//
// Every step adds an invocation and a completion to the trace. The
// completion case is OK, a session error code such as DENIED, or a
// geometry error name such as NOT_FOUND. Session notifications fired during
// a step (new, properties, geometry, deleted, disconnected, reconnected,
// map_closed, failed) are added between the two.
//
// # Assertion Types
//
//   - trace_contains: an action or notification appears with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: one feature in the cache or on the server has values
//
// # Deterministic Testing
//
// Server ids are sequential and the session has no background poller, so
// traces are identical across runs and can be compared with golden files
// (see RunWithGolden).
package harness
