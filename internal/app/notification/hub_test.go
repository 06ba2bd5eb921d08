package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/app/playback"
)

func recv(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "feed closed unexpectedly")
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, ch1 := hub.Subscribe(0, 4)
	_, ch2 := hub.Subscribe(0, 4)

	hub.Publish(playback.Event{Type: playback.EventTrackStarted, ChatID: 100})

	for _, ch := range []<-chan Envelope{ch1, ch2} {
		env := recv(t, ch)
		assert.Equal(t, playback.EventTrackStarted, env.Event.Type)
		assert.Equal(t, int64(100), env.Event.ChatID)
		assert.Equal(t, uint64(1), env.SequenceNo)
	}
}

func TestHub_ChatFilter(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, all := hub.Subscribe(0, 4)
	_, only200 := hub.Subscribe(200, 4)

	hub.Publish(playback.Event{Type: playback.EventProgress, ChatID: 100})
	hub.Publish(playback.Event{Type: playback.EventProgress, ChatID: 200})

	assert.Equal(t, int64(100), recv(t, all).Event.ChatID)
	assert.Equal(t, int64(200), recv(t, all).Event.ChatID)

	env := recv(t, only200)
	assert.Equal(t, int64(200), env.Event.ChatID)
	select {
	case extra := <-only200:
		t.Fatalf("filtered subscriber got chat %d", extra.Event.ChatID)
	default:
	}
}

func TestHub_SequenceNumbersIncrease(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, ch := hub.Subscribe(0, 8)

	for i := 0; i < 3; i++ {
		hub.Publish(playback.Event{Type: playback.EventProgress, ChatID: 100})
	}

	var last uint64
	for i := 0; i < 3; i++ {
		env := recv(t, ch)
		assert.Greater(t, env.SequenceNo, last)
		last = env.SequenceNo
	}
}

func TestHub_SlowSubscriberDropsNotBlocks(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, ch := hub.Subscribe(0, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody reads ch; publishes beyond the buffer must not block.
		for i := 0; i < 10; i++ {
			hub.Publish(playback.Event{Type: playback.EventProgress, ChatID: 100})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The first event is retained, the rest were dropped.
	env := recv(t, ch)
	assert.Equal(t, uint64(1), env.SequenceNo)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	id, ch := hub.Subscribe(0, 4)
	assert.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(id)
	assert.Equal(t, 0, hub.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok, "feed must be closed after unsubscribe")

	// Unknown IDs are ignored.
	hub.Unsubscribe("missing")
}

func TestHub_CloseEndsFeeds(t *testing.T) {
	hub := NewHub()

	_, ch := hub.Subscribe(0, 4)
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Subscribing after close yields a closed feed.
	_, late := hub.Subscribe(0, 4)
	_, ok = <-late
	assert.False(t, ok)
}
