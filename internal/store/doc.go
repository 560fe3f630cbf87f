// Package store provides SQLite-backed durable storage for scene traces.
//
// The store is an append-only log of:
//   - Passes: one row per evaluation pass, with the hash of the scene spec
//   - Events: the writes and field events of each pass, keyed by seq
//   - Snapshots: the field values of a scene at the end of a pass
//
// *Store implements engine.Recorder, so a scene built WithRecorder(store)
// persists its trace as it runs.
//
// # Critical Patterns
//
// Logical Time:
//   - Events are ordered by seq INTEGER (logical clock), never timestamps
//   - Replaying the stored writes of a pass needs nothing but the events
//
// Deterministic Query Results:
//   - Every multi-row query has an ORDER BY over seq or token
//   - Snapshot entries are stored as canonical JSON (RFC 8785)
//
// Idempotent Writes:
//   - Re-writing a pass, event or snapshot with the same key is a no-op
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: events and snapshots must name a stored pass
package store
