// Package store is the SQLite build log. Every patch build is recorded
// with its load order, its conflict report and the digest of its output.
//
// # Tables
//
//   - builds: one row per build, keyed by a UUIDv7 build id
//   - build_plugins: the load order of the build, active flag per plugin
//   - build_conflicts: every object a later plugin overrode, with the
//     fields that changed
//
// # Ordering
//
// Builds carry a seq INTEGER assigned at insert time. Listing orders by
// seq, never by the wall-clock started_at column, so equal timestamps never
// reorder history.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
