package store

import (
	"context"
	"sync"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
)

// Memory is a thread-safe in-process Store. State does not survive a
// restart.
type Memory struct {
	mu        sync.RWMutex
	state     types.ObservedState
	saved     bool
	updatedAt time.Time
	now       func() time.Time // injectable for deterministic tests
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{state: types.EmptyState(), now: time.Now}
}

// Load returns a copy of the last saved state.
func (m *Memory) Load(_ context.Context) (types.ObservedState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

// Save replaces the stored state with a copy of state.
func (m *Memory) Save(ctx context.Context, state types.ObservedState) error {
	if err := ctx.Err(); err != nil {
		return ioErr("memory", "save", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	m.saved = true
	m.updatedAt = m.now()
	return nil
}

// UpdatedAt returns when Save last succeeded and whether it ever did.
func (m *Memory) UpdatedAt() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updatedAt, m.saved
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
