package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

// Store loads and saves the observed state.
type Store interface {
	Load(ctx context.Context) (types.ObservedState, error)
	Save(ctx context.Context, state types.ObservedState) error
	Close() error
}

// IOError wraps a backend failure with the backend name and operation.
type IOError struct {
	Backend string
	Op      string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(backend, op string, err error) error {
	return &IOError{Backend: backend, Op: op, Err: err}
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.Path), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		r, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		p, err := OpenPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
}

func encode(state types.ObservedState) ([]byte, error) {
	return json.Marshal(state.Clone())
}

// decode parses a persisted state. Missing fields come back empty, not nil.
func decode(data []byte) (types.ObservedState, error) {
	var state types.ObservedState
	if err := json.Unmarshal(data, &state); err != nil {
		return types.ObservedState{}, err
	}
	return state.Clone(), nil
}
