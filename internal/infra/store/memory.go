package store

import (
	"context"
	"sort"
	"sync"

	"github.com/osa030/callbox/internal/domain/snapshot"
)

// Memory is the in-process store. State does not survive a restart, so
// resume-after-crash is not available with this backend.
type Memory struct {
	mu    sync.RWMutex
	snaps map[int64]snapshot.Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[int64]snapshot.Snapshot)}
}

// Get returns the snapshot for one chat, or ErrNotFound.
func (m *Memory) Get(_ context.Context, chatID int64) (snapshot.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[chatID]
	if !ok {
		return snapshot.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Put writes or replaces the snapshot for its chat.
func (m *Memory) Put(_ context.Context, snap snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snaps[snap.ChatID] = snap
	return nil
}

// Delete removes the snapshot for one chat.
func (m *Memory) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snaps, chatID)
	return nil
}

// List returns all stored snapshots ordered by chat id.
func (m *Memory) List(_ context.Context) ([]snapshot.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]snapshot.Snapshot, 0, len(m.snaps))
	for _, snap := range m.snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error {
	return nil
}
