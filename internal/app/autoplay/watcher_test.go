package autoplay

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/app/notification"
	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/config"
	"github.com/osa030/callbox/internal/infra/store"
)

// quietTransport accepts everything instantly.
type quietTransport struct{}

func (quietTransport) Attach(context.Context, int64, track.Track, time.Duration) error { return nil }
func (quietTransport) Detach(context.Context, int64) error                             { return nil }
func (quietTransport) Pause(context.Context, int64) error                              { return nil }
func (quietTransport) Resume(context.Context, int64) error                             { return nil }

// queryResolver resolves any query to a track named after it.
type queryResolver struct {
	failing bool
}

func (r queryResolver) Resolve(_ context.Context, query string) (track.Track, error) {
	if r.failing {
		return track.Track{}, errors.New("source down")
	}
	return track.Track{
		ID:       "id-" + query,
		Title:    query,
		Duration: 3 * time.Minute,
		URL:      "https://tracks.example/" + query,
		Source:   "test",
	}, nil
}

func watcherSetup(t *testing.T, resolver registry.Resolver, chain *Chain, count int) (*registry.Registry, *notification.Hub, *Watcher) {
	t.Helper()

	st, err := store.Open("memory", nil)
	require.NoError(t, err)
	hub := notification.NewHub()

	cfg := playback.Config{
		ProgressInterval: time.Hour,
		AttachTimeout:    time.Second,
		HistorySize:      5,
	}
	reg := registry.New(cfg, quietTransport{}, st, hub, resolver, nil)

	w := NewWatcher(reg, hub, chain, config.AutoplayConfig{
		Enabled:   true,
		Requester: "autoplay",
		Count:     count,
	})
	w.Start()

	t.Cleanup(func() {
		w.Stop()
		require.NoError(t, reg.Shutdown(context.Background()))
		hub.Close()
	})
	return reg, hub, w
}

func TestWatcherRefillsOnQueueEmpty(t *testing.T) {
	chain := NewChain(&stubProvider{name: "stub", queries: []string{"first pick", "second pick"}})
	reg, hub, _ := watcherSetup(t, queryResolver{}, chain, 2)

	hub.Publish(playback.Event{Type: playback.EventQueueEmpty, ChatID: 7})

	require.Eventually(t, func() bool {
		st, err := reg.Status(7)
		return err == nil && st.State == playback.StatePlaying
	}, 3*time.Second, 10*time.Millisecond)

	st, err := reg.Status(7)
	require.NoError(t, err)
	assert.Equal(t, "first pick", st.Track.Title)
	assert.Equal(t, 1, st.QueueLen, "second proposal queues behind the first")
}

func TestWatcherIgnoresOtherEvents(t *testing.T) {
	provider := &stubProvider{name: "stub", queries: []string{"x"}}
	_, hub, _ := watcherSetup(t, queryResolver{}, NewChain(provider), 1)

	hub.Publish(playback.Event{Type: playback.EventTrackStarted, ChatID: 7})
	hub.Publish(playback.Event{Type: playback.EventProgress, ChatID: 7})

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, provider.calls.Load())
}

func TestWatcherSurvivesRejectedProposals(t *testing.T) {
	provider := &stubProvider{name: "stub", queries: []string{"a", "b"}}
	reg, hub, _ := watcherSetup(t, queryResolver{failing: true}, NewChain(provider), 2)

	hub.Publish(playback.Event{Type: playback.EventQueueEmpty, ChatID: 7})

	require.Eventually(t, func() bool {
		return provider.calls.Load() > 0
	}, 3*time.Second, 10*time.Millisecond)

	// All proposals failed to resolve; nothing should be playing.
	time.Sleep(150 * time.Millisecond)
	st, err := reg.Status(7)
	if err == nil {
		assert.Equal(t, playback.StateIdle, st.State)
	}
}

func TestWatcherStopIsClean(t *testing.T) {
	provider := &stubProvider{name: "stub", queries: []string{"x"}}
	_, hub, w := watcherSetup(t, queryResolver{}, NewChain(provider), 1)

	w.Stop()
	w.Stop() // second stop is harmless

	hub.Publish(playback.Event{Type: playback.EventQueueEmpty, ChatID: 9})
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, provider.calls.Load())
}
