package resume

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/domain/snapshot"
	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/store"
)

type fakeTransport struct {
	mu        sync.Mutex
	seeks     map[int64]time.Duration
	attachErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{seeks: make(map[int64]time.Duration)}
}

func (f *fakeTransport) Attach(_ context.Context, chatID int64, _ track.Track, seek time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.seeks[chatID] = seek
	return nil
}

func (f *fakeTransport) Detach(context.Context, int64) error { return nil }
func (f *fakeTransport) Pause(context.Context, int64) error { return nil }
func (f *fakeTransport) Resume(context.Context, int64) error { return nil }

func (f *fakeTransport) seek(chatID int64) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.seeks[chatID]
	return s, ok
}

type noopNotifier struct{}

func (noopNotifier) Publish(playback.Event) {}

type noResolver struct{}

func (noResolver) Resolve(context.Context, string) (track.Track, error) {
	return track.Track{}, errors.New("resolver not available during resume")
}

func testSetup(t *testing.T, tr playback.Transport) (store.Store, *registry.Registry) {
	t.Helper()
	st, err := store.Open("memory", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := playback.Config{
		ProgressInterval: time.Hour,
		AttachTimeout:    time.Second,
		HistorySize:      5,
	}
	reg := registry.New(cfg, tr, st, noopNotifier{}, noResolver{}, nil)
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })
	return st, reg
}

func seed(t *testing.T, st store.Store, snap snapshot.Snapshot) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), snap))
}

func pausedSnapshot(chatID int64, posS int64, savedAgo time.Duration) snapshot.Snapshot {
	return snapshot.Snapshot{
		ChatID: chatID,
		Track: snapshot.TrackRecord{
			ID:        "t1",
			Title:     "Title",
			Artist:    "Artist",
			DurationS: 180,
			URL:       "https://example.com/t1",
			Source:    "test",
		},
		PositionS: posS,
		Playing:   false,
		SavedAt:   time.Now().Add(-savedAgo),
	}
}

func TestCoordinator_RestoresPausedSnapshot(t *testing.T) {
	tr := newFakeTransport()
	st, reg := testSetup(t, tr)

	seed(t, st, pausedSnapshot(100, 42, 10*time.Minute))

	c := New(st, reg, 24*time.Hour)
	require.NoError(t, c.Run(context.Background()))

	status, err := reg.Status(100)
	require.NoError(t, err)
	assert.Equal(t, playback.StatePlaying, status.State)
	assert.Equal(t, "t1", status.Track.ID)

	// Paused snapshots resume at the saved position regardless of
	// downtime.
	seek, ok := tr.seek(100)
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, seek)
}

func TestCoordinator_EstimatesDowntimeForPlaying(t *testing.T) {
	tr := newFakeTransport()
	st, reg := testSetup(t, tr)

	snap := pausedSnapshot(100, 42, 30*time.Second)
	snap.Playing = true
	seed(t, st, snap)

	c := New(st, reg, 24*time.Hour)
	require.NoError(t, c.Run(context.Background()))

	seek, ok := tr.seek(100)
	require.True(t, ok)
	assert.InDelta(t, 72, seek.Seconds(), 2, "saved position plus downtime")
}

func TestCoordinator_DropsStaleSnapshots(t *testing.T) {
	tr := newFakeTransport()
	st, reg := testSetup(t, tr)

	seed(t, st, pausedSnapshot(100, 42, 25*time.Hour))

	c := New(st, reg, 24*time.Hour)
	require.NoError(t, c.Run(context.Background()))

	_, err := reg.Status(100)
	assert.ErrorIs(t, err, registry.ErrNoSession)

	snaps, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps, "stale snapshot must be deleted")
}

func TestCoordinator_FailedRestoreDropsSnapshot(t *testing.T) {
	tr := newFakeTransport()
	tr.attachErr = errors.New("voice backend offline")
	st, reg := testSetup(t, tr)

	seed(t, st, pausedSnapshot(100, 42, time.Minute))

	c := New(st, reg, 24*time.Hour)
	require.NoError(t, c.Run(context.Background()))

	snaps, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps, "unresumable snapshot must be deleted")

	// The chat is idle, not wedged: a later play can proceed.
	status, err := reg.Status(100)
	require.NoError(t, err)
	assert.Equal(t, playback.StateIdle, status.State)
}

func TestCoordinator_MultipleChats(t *testing.T) {
	tr := newFakeTransport()
	st, reg := testSetup(t, tr)

	seed(t, st, pausedSnapshot(100, 10, time.Minute))
	seed(t, st, pausedSnapshot(200, 20, time.Minute))
	seed(t, st, pausedSnapshot(300, 30, 48*time.Hour))

	c := New(st, reg, 24*time.Hour)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 2, reg.Count())
	_, ok := tr.seek(100)
	assert.True(t, ok)
	_, ok = tr.seek(200)
	assert.True(t, ok)
	_, ok = tr.seek(300)
	assert.False(t, ok, "stale chat must not be resumed")
}

type brokenStore struct {
	store.Store
}

func (b brokenStore) List(context.Context) ([]snapshot.Snapshot, error) {
	return nil, store.ErrUnavailable
}

func TestCoordinator_BrokenStoreStartsEmpty(t *testing.T) {
	tr := newFakeTransport()
	st, reg := testSetup(t, tr)

	c := New(brokenStore{Store: st}, reg, 24*time.Hour)
	assert.NoError(t, c.Run(context.Background()), "a broken store must not abort startup")
	assert.Equal(t, 0, reg.Count())
}
