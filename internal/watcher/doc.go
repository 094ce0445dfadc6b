// Package watcher recursively watches a repository working tree and reports
// changes as a stream of notifications.
//
// A Session registers one watch per reachable, non-excluded directory and
// runs a single event loop goroutine. Each batch of events for a directory
// yields at most one Notification: true when the directory lies inside the
// repository metadata directory, false otherwise. Notifications are
// best-effort; slow subscribers lose notifications rather than stall the
// loop, so consumers should treat them as refresh triggers.
//
// Events naming an excluded path are ignored, including those reported by
// the watch on the excluded directory's parent. Removing or creating an
// excluded directory therefore publishes nothing on its own.
package watcher
