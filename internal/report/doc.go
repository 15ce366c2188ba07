// Package report provides the SQLite run ledger.
//
// The ledger is append-only. Each transform run leaves one runs row and,
// for a successful run, its step summaries, events, detected fragments and
// host-context clones.
//
// # Critical Patterns
//
// Logical Ordering:
//   - Runs are ordered by ordinal, events by seq; both are assigned
//     without wall-clock time
//   - All queries carry an ORDER BY so listings are identical across
//     machines and reopenings
//
// Idempotent Writes:
//   - Recording the same run ID twice is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package report
