package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite pragmas applied to every connection pool.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS observed_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
	sqliteLoad = `SELECT body FROM observed_state WHERE id = ?`
	sqliteSave = `INSERT INTO observed_state (id, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
)

// SQLite stores the state in a single-row table.
type SQLite struct {
	sqlStore
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ioErr("sqlite", "open", fmt.Errorf("mkdir: %w", err))
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ioErr("sqlite", "open", err)
	}
	// One writer; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, ioErr("sqlite", "open", fmt.Errorf("%s: %w", p, err))
		}
	}

	s := &SQLite{sqlStore{
		backend:    "sqlite",
		db:         db,
		loadQuery:  sqliteLoad,
		saveQuery:  sqliteSave,
		schemaStmt: sqliteSchema,
	}}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
