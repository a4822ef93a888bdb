// Package api implements the read-only HTTP status API of the watcher.
//
// New(state, loop, metrics) returns an http.Handler (a chi router) that serves:
//
//	GET /api/v1/health  loop status: ok | starting | degraded, build info, cycle counters
//	GET /api/v1/state   the persisted observed state plus per-level counts
//	GET /api/v1/alerts  recently detected alerts, newest first (?limit=N)
//	GET /metrics        Prometheus text exposition
//
// The state endpoint reads from the store, never from the poll loop's memory.
// All JSON endpoints respond with Content-Type: application/json and return
// a JSON error body with 404 or 405 for unknown routes or methods.
package api
