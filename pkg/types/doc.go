// Package types defines the shared data model used across the watcher:
// institution uptime snapshots, the incident timeline, the ObservedState
// cursor persisted between polls, and the Alert emitted to notifiers.
//
// These are the canonical in-memory representations. The upstream feed's
// wire format is decoded by the feed package; every store backend persists
// ObservedState using the JSON tags declared here.
package types
