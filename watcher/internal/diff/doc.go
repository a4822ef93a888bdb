// Package diff computes which status facts are new relative to the last
// observed snapshot.
//
// Uptime(previous, current) alerts on institutions that moved out of clear
// into warning or error. An institution missing from previous counts as
// previously clear, so the first poll alerts on every open problem.
//
// Timeline(previous, current) alerts on the open incident window: every
// entry from the head of current up to (not including) the first
// "All Clear" sentinel, unless the head is itself the sentinel or carries
// the same title as the head of previous.
//
// All functions are pure. They never mutate their inputs and hold no state,
// so calling them twice with the same arguments yields the same alerts.
package diff
