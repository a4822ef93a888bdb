package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
)

// stateRowID is the primary key of the only row the state tables hold.
const stateRowID = 1

// sqlStore is the single-row database/sql backend shared by SQLite and
// Postgres. The dialects differ only in DDL and placeholder syntax.
type sqlStore struct {
	backend    string
	db         *sql.DB
	loadQuery  string
	saveQuery  string
	schemaStmt string
}

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schemaStmt); err != nil {
		return ioErr(s.backend, "migrate", err)
	}
	return nil
}

// Load returns the stored state, or an empty state if the row is absent.
func (s *sqlStore) Load(ctx context.Context) (types.ObservedState, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, s.loadQuery, stateRowID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return types.EmptyState(), nil
	}
	if err != nil {
		return types.ObservedState{}, ioErr(s.backend, "load", err)
	}
	state, err := decode(body)
	if err != nil {
		return types.ObservedState{}, ioErr(s.backend, "load", err)
	}
	return state, nil
}

// Save upserts the state row in a single statement.
func (s *sqlStore) Save(ctx context.Context, state types.ObservedState) error {
	body, err := encode(state)
	if err != nil {
		return ioErr(s.backend, "save", err)
	}
	if _, err := s.db.ExecContext(ctx, s.saveQuery, stateRowID, string(body), time.Now().UTC()); err != nil {
		return ioErr(s.backend, "save", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
