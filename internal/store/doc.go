// Package store provides SQLite-backed durable storage for a map session.
//
// The store keeps two tables:
//   - queue_entries: queued mutations not yet acknowledged by the server
//   - sync_log: one row per successful sync cycle
//
// # Ordering
//
// Pending entries are returned in insertion order (seq INTEGER PRIMARY KEY
// AUTOINCREMENT), which is the order the queue worker must deliver them.
// Wall-clock columns are informational only and never used for ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
