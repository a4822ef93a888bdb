package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is how long Watch waits after the last file event
// before reloading.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watch reloads the config at path whenever its content changes and passes
// the result to onChange. The overrides used at startup are re-applied on
// every reload. It runs until ctx is cancelled.
//
// The parent directory is watched so editors that save by rename are seen.
// Bursts of events are coalesced into one reload, and a reload whose bytes
// match the last applied file is skipped. An invalid file is logged and the
// previous config stays active.
func Watch(ctx context.Context, path string, o Overrides, onChange func(*Config)) error {
	return watch(ctx, path, o, DefaultReloadDebounce, nil, onChange)
}

// reloader carries the state shared between debounced reloads.
type reloader struct {
	path     string
	o        Overrides
	onChange func(*Config)
	applied  []byte
}

func (r *reloader) reload() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		// Between the remove and create of an atomic save.
		slog.Warn("config: read failed, keeping previous config", "path", r.path, "err", err)
		return
	}
	if bytes.Equal(data, r.applied) {
		slog.Debug("config: content unchanged, reload skipped", "path", r.path)
		return
	}
	cfg, err := parse(data, r.o)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", r.path, "err", err)
		return
	}
	r.applied = data
	slog.Info("config: reloaded", "path", r.path)
	r.onChange(cfg)
}

// watch is Watch with a configurable debounce. ready, when non-nil, is
// closed once the directory watch is registered.
func watch(ctx context.Context, path string, o Overrides, debounce time.Duration, ready chan<- struct{}, onChange func(*Config)) error {
	path = filepath.Clean(path)
	initial, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	slog.Info("config: watching for changes", "path", path, "debounce", debounce)
	if ready != nil {
		close(ready)
	}

	r := &reloader{path: path, o: o, onChange: onChange, applied: initial}

	// Reset never delivers a stale expiry on Go 1.23+ timers.
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			r.reload()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
