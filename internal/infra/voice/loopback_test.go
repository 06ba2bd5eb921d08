package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/domain/track"
)

func shortTrack(id string, d time.Duration) track.Track {
	return track.Track{ID: id, Title: id, Duration: d, URL: "file:///" + id}
}

func waitEnd(t *testing.T, l *Loopback, timeout time.Duration) TrackEnd {
	t.Helper()
	select {
	case e, ok := <-l.Events():
		require.True(t, ok, "events channel closed")
		return e
	case <-time.After(timeout):
		t.Fatal("timed out waiting for end of stream")
		return TrackEnd{}
	}
}

func TestLoopbackReportsEndOfStream(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	err := l.Attach(context.Background(), 100, shortTrack("t-1", 150*time.Millisecond), 0)
	require.NoError(t, err)

	e := waitEnd(t, l, 2*time.Second)
	assert.Equal(t, int64(100), e.ChatID)
	assert.Equal(t, "t-1", e.TrackID)
}

func TestLoopbackSeekShortensStream(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	// 10 minutes of track with all but 100ms already behind us.
	tr := shortTrack("t-1", 10*time.Minute)
	err := l.Attach(context.Background(), 100, tr, 10*time.Minute-100*time.Millisecond)
	require.NoError(t, err)

	e := waitEnd(t, l, 2*time.Second)
	assert.Equal(t, "t-1", e.TrackID)
}

func TestLoopbackPauseFreezesClock(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Attach(ctx, 100, shortTrack("t-1", 250*time.Millisecond), 0))
	require.NoError(t, l.Pause(ctx, 100))

	// Paused past the track's natural end: no report.
	select {
	case e := <-l.Events():
		t.Fatalf("unexpected end of stream while paused: %+v", e)
	case <-time.After(600 * time.Millisecond):
	}

	require.NoError(t, l.Resume(ctx, 100))
	e := waitEnd(t, l, 2*time.Second)
	assert.Equal(t, "t-1", e.TrackID)
}

func TestLoopbackPauseResumeIdempotent(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Attach(ctx, 100, shortTrack("t-1", time.Hour), 0))

	require.NoError(t, l.Pause(ctx, 100))
	require.NoError(t, l.Pause(ctx, 100))
	require.NoError(t, l.Resume(ctx, 100))
	require.NoError(t, l.Resume(ctx, 100))

	assert.Error(t, l.Pause(ctx, 999))
	assert.Error(t, l.Resume(ctx, 999))
}

func TestLoopbackReplaceStream(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Attach(ctx, 100, shortTrack("t-1", time.Hour), 0))
	require.NoError(t, l.Attach(ctx, 100, shortTrack("t-2", 150*time.Millisecond), 0))

	// Only the replacement stream ends; the first timer was cancelled.
	e := waitEnd(t, l, 2*time.Second)
	assert.Equal(t, "t-2", e.TrackID)
}

func TestLoopbackLiveStreamNeverEnds(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	live := track.Track{ID: "live-1", Title: "radio", URL: "http://radio.example/stream"}
	require.NoError(t, l.Attach(context.Background(), 100, live, 0))

	select {
	case e := <-l.Events():
		t.Fatalf("live stream reported an end: %+v", e)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestLoopbackDetach(t *testing.T) {
	l := NewLoopback(0)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Attach(ctx, 100, shortTrack("t-1", 150*time.Millisecond), 0))
	require.NoError(t, l.Detach(ctx, 100))

	// Detached before the end: no report.
	select {
	case e := <-l.Events():
		t.Fatalf("unexpected end of stream after detach: %+v", e)
	case <-time.After(500 * time.Millisecond):
	}

	// Unknown chat detach is a no-op.
	require.NoError(t, l.Detach(ctx, 999))
}

func TestLoopbackAttachHonorsContext(t *testing.T) {
	l := NewLoopback(5 * time.Second)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Attach(ctx, 100, shortTrack("t-1", time.Hour), 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopbackCloseEndsEverything(t *testing.T) {
	l := NewLoopback(0)
	require.NoError(t, l.Attach(context.Background(), 100, shortTrack("t-1", time.Hour), 0))

	l.Close()
	l.Close() // double close is harmless

	_, ok := <-l.Events()
	assert.False(t, ok)

	err := l.Attach(context.Background(), 101, shortTrack("t-2", time.Hour), 0)
	assert.Error(t, err)
}
