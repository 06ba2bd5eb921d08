package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/callbox/internal/domain/snapshot"
)

// FileSettings configures the file backend.
type FileSettings struct {
	Path string `mapstructure:"path" default:"callbox_state.json" validate:"required"`
}

// File persists all snapshots as one JSON document on disk. Writes
// replace the file atomically (temp file + rename), so a crash mid-write
// leaves the previous document intact.
type File struct {
	mu    sync.Mutex
	path  string
	snaps map[int64]snapshot.Snapshot
}

// NewFile opens the file backend, loading any existing document.
func NewFile(settings map[string]any) (*File, error) {
	var cfg FileSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}

	f := &File{path: cfg.Path, snaps: make(map[int64]snapshot.Snapshot)}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(ErrUnavailable, "read %s: %v", f.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var snaps []snapshot.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return errors.Wrapf(ErrUnavailable, "parse %s: %v", f.path, err)
	}
	for _, s := range snaps {
		f.snaps[s.ChatID] = s
	}
	return nil
}

// flush writes the whole document. Caller holds the mutex.
func (f *File) flush() error {
	snaps := make([]snapshot.Snapshot, 0, len(f.snaps))
	for _, s := range f.snaps {
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ChatID < snaps[j].ChatID })

	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "marshal snapshots: %v", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".callbox_state-*.json")
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "create temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrUnavailable, "write %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrUnavailable, "close %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrUnavailable, "rename %s: %v", tmpName, err)
	}
	return nil
}

// Get returns the snapshot for one chat, or ErrNotFound.
func (f *File) Get(_ context.Context, chatID int64) (snapshot.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, ok := f.snaps[chatID]
	if !ok {
		return snapshot.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Put writes or replaces the snapshot for its chat.
func (f *File) Put(_ context.Context, snap snapshot.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snaps[snap.ChatID] = snap
	return f.flush()
}

// Delete removes the snapshot for one chat.
func (f *File) Delete(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.snaps[chatID]; !ok {
		return nil
	}
	delete(f.snaps, chatID)
	return f.flush()
}

// List returns all stored snapshots ordered by chat id.
func (f *File) List(_ context.Context) ([]snapshot.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]snapshot.Snapshot, 0, len(f.snaps))
	for _, s := range f.snaps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// Close is a no-op; every write is already flushed.
func (f *File) Close() error {
	return nil
}
