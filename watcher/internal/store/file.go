package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/statuswatch/statuswatch/pkg/types"
)

// File keeps the state as one JSON document on disk. Writes go to a temp
// file in the same directory which is then renamed over the target.
type File struct {
	path string
}

// NewFile returns a File store at path. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load reads the document. A missing file is an empty state.
func (f *File) Load(ctx context.Context) (types.ObservedState, error) {
	if err := ctx.Err(); err != nil {
		return types.ObservedState{}, ioErr("file", "load", err)
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.EmptyState(), nil
	}
	if err != nil {
		return types.ObservedState{}, ioErr("file", "load", err)
	}
	state, err := decode(data)
	if err != nil {
		return types.ObservedState{}, ioErr("file", "load", fmt.Errorf("decode %s: %w", f.path, err))
	}
	return state, nil
}

// Save writes state atomically.
func (f *File) Save(ctx context.Context, state types.ObservedState) error {
	data, err := encode(state)
	if err != nil {
		return ioErr("file", "save", err)
	}
	if err := ctx.Err(); err != nil {
		return ioErr("file", "save", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioErr("file", "save", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return ioErr("file", "save", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return ioErr("file", "save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return ioErr("file", "save", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ioErr("file", "save", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return ioErr("file", "save", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return ioErr("file", "save", err)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }
