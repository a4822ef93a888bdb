package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const (
	postgresSchema = `CREATE TABLE IF NOT EXISTS statuswatch_observed_state (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	postgresLoad = `SELECT body FROM statuswatch_observed_state WHERE id = $1`
	postgresSave = `INSERT INTO statuswatch_observed_state (id, body, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
)

// Postgres stores the state in a single-row JSONB table.
type Postgres struct {
	sqlStore
}

// OpenPostgres connects using dsn, verifies the connection and ensures the
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, ioErr("postgres", "open", fmt.Errorf("empty dsn"))
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, ioErr("postgres", "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, ioErr("postgres", "open", fmt.Errorf("ping: %w", err))
	}
	p, err := newPostgres(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// newPostgres wraps an open connection pool.
func newPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	p := &Postgres{sqlStore{
		backend:    "postgres",
		db:         db,
		loadQuery:  postgresLoad,
		saveQuery:  postgresSave,
		schemaStmt: postgresSchema,
	}}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
