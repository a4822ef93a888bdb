// Package poller runs the fetch, diff, notify, persist loop.
//
// Run performs one cycle immediately and then one per interval tick. A tick
// that fires while a cycle is still running is dropped. Each cycle:
//
//  1. fetches the uptime document and the timeline concurrently;
//  2. diffs them against the observed state (the cursor);
//  3. sends all resulting alerts to the notifier as one batch;
//  4. saves the fetched snapshot and, only if the save succeeded, makes it
//     the new cursor.
//
// A failed fetch skips the cycle and leaves the cursor untouched. A failed
// delivery is logged and does not block the save. The cursor is loaded from
// the store before the first cycle; if that load fails the cycle is skipped
// and the load is retried on the next tick.
//
// On shutdown no new cycle starts. The in-flight cycle runs on a context
// detached from the caller's and is given the shutdown timeout to finish
// before its I/O is cancelled.
package poller
