// Package store provides SQLite-backed run history.
//
// Every completed contract run is one row in the runs table: identity
// (run_id, contract, started_at, tool_version), the outcome counts, and
// the full report document as a JSON blob so `cdd runs show` can
// reproduce it verbatim later.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Writes are idempotent: re-recording a run_id is a no-op, so a retried
// command never duplicates history.
package store
