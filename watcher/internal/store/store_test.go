package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

func sampleState() types.ObservedState {
	return types.ObservedState{
		Uptime: types.UptimeSnapshot{
			"ins_1": {Title: "First Bank", Level: types.LevelClear, Percentage: 100},
			"ins_2": {Title: "Second Bank", Level: types.LevelError, Percentage: 81.5},
		},
		Timeline: types.TimelineSnapshot{
			{Title: "Login errors", Description: "MFA failing", ActivatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
			{Title: types.AllClearTitle},
		},
		ObservedAt: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC),
	}
}

func mustEncode(t *testing.T, s types.ObservedState) []byte {
	t.Helper()
	b, err := encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on fresh store: %v", err)
	}
	if got.Uptime == nil || got.Timeline == nil || len(got.Uptime) != 0 || len(got.Timeline) != 0 {
		t.Fatalf("fresh Load() = %+v, want empty non-nil state", got)
	}

	want := sampleState()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save(): %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after Save: %v", err)
	}
	if !bytes.Equal(mustEncode(t, got), mustEncode(t, want)) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", mustEncode(t, got), mustEncode(t, want))
	}

	// Wholesale replace: the second save drops entries of the first.
	next := types.ObservedState{
		Uptime:   types.UptimeSnapshot{"ins_3": {Title: "Third Bank", Level: types.LevelWarning, Percentage: 97}},
		Timeline: types.TimelineSnapshot{},
	}
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("second Save(): %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after second Save: %v", err)
	}
	if _, ok := got.Uptime["ins_1"]; ok || len(got.Uptime) != 1 || len(got.Timeline) != 0 {
		t.Errorf("second Save did not replace state: %+v", got)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_IsolatedFromCaller(t *testing.T) {
	m := NewMemory()
	st := sampleState()
	if err := m.Save(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	st.Uptime["ins_1"] = types.Institution{Title: "mutated"}
	st.Timeline[0].Title = "mutated"

	got, _ := m.Load(context.Background())
	if got.Uptime["ins_1"].Title != "First Bank" || got.Timeline[0].Title != "Login errors" {
		t.Errorf("store shares memory with caller: %+v", got)
	}
}

func TestMemory_UpdatedAt(t *testing.T) {
	m := NewMemory()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	if _, ok := m.UpdatedAt(); ok {
		t.Fatal("UpdatedAt() reported a save before any Save")
	}
	_ = m.Save(context.Background(), sampleState())
	if at, ok := m.UpdatedAt(); !ok || !at.Equal(fixed) {
		t.Errorf("UpdatedAt() = %v, %v; want %v, true", at, ok, fixed)
	}
}

func TestMemory_SaveCancelled(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Save(ctx, sampleState())
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Backend != "memory" || ioe.Op != "save" {
		t.Fatalf("Save() with cancelled ctx = %v, want memory save IOError", err)
	}
	got, _ := m.Load(context.Background())
	if len(got.Uptime) != 0 {
		t.Error("cancelled Save modified state")
	}
}

func TestFile(t *testing.T) {
	exerciseStore(t, NewFile(filepath.Join(t.TempDir(), "nested", "state.json")))
}

func TestFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "state.json"))
	for i := 0; i < 3; i++ {
		if err := f.Save(context.Background(), sampleState()); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only state.json", names)
	}
}

func TestFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFile(path).Load(context.Background())
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Backend != "file" || ioe.Op != "load" {
		t.Fatalf("Load() = %v, want file load IOError", err)
	}
}

func TestFile_PartialDocumentNormalised(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"uptime": null}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewFile(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Uptime == nil || got.Timeline == nil {
		t.Errorf("Load() = %+v, want non-nil empty fields", got)
	}
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite(): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, sampleState()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mustEncode(t, got), mustEncode(t, sampleState())) {
		t.Errorf("state lost across reopen: %+v", got)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{"memory", config.StoreConfig{Backend: "memory"}, false},
		{"file", config.StoreConfig{Backend: "file", Path: filepath.Join(dir, "s.json")}, false},
		{"sqlite", config.StoreConfig{Backend: "sqlite", Path: filepath.Join(dir, "s.db")}, false},
		{"postgres without dsn", config.StoreConfig{Backend: "postgres"}, true},
		{"unknown", config.StoreConfig{Backend: "etcd"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(context.Background(), tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tc.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
