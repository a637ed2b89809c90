// Package scheduler runs the bounded-concurrency acquisition loop.
//
// The scheduler owns a pending-work queue and an active-task set capped by
// a runtime-mutable limit. It pops queued episodes in airdate order,
// spawns one retrieval task per episode, batches successful completions
// for notification, and restarts its own loop after an unexpected fault so
// acquisition never stops for the process lifetime.
package scheduler
