// Package lifecycle owns the canonical local view of backend-managed model
// artifacts: which models exist, which are downloading or extracting, their
// progress and throughput, and which one is active. It is structured into
// small files by concern:
//
//   - reconciler.go: core Reconciler type, constructor, user-facing actions
//     (select, start/cancel download, delete) and snapshot refreshes.
//   - events.go: push-event dispatch and terminal-state handling.
//   - projection.go: read-only queries consumed by the HTTP layer.
//   - notify.go: change notification (Notifier) with an in-memory
//     implementation for tests.
//   - metrics.go: prometheus lifecycle counters and throughput gauge.
//
// All mutation is serialized behind the Reconciler's mutex; user actions and
// push events may interleave in any order, so every transition is a no-op
// when the target state already holds. Locally initiated actions apply
// optimistic state before the backend confirms and roll it back on explicit
// rejection. External packages should treat this package as the single
// writer of sync state and use public methods only.
package lifecycle
