// Package store persists the ObservedState cursor between poll cycles.
//
// Every backend implements Store: Load returns the last saved state (an
// empty state when nothing has been saved yet), Save replaces it wholesale,
// and Close releases the backend's resources. A Save either fully replaces
// the previous state or leaves it untouched; no backend can expose a
// half-written cursor.
//
// Backends:
//   - Memory: in-process, lost on restart (tests and dry runs)
//   - File: one JSON document, written to a temp file then renamed
//   - SQLite: single-row table in a WAL-mode database (modernc.org/sqlite)
//   - Redis: one JSON string value under a configured key
//   - Postgres: single-row JSONB table (lib/pq)
//
// Open builds the backend named by config.StoreConfig. Failures are returned
// as *IOError.
package store
