// Package voice provides voice call transports. The loopback transport
// simulates a call for dev and test deployments; real transports are
// deployment specific and live out of tree.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/domain/track"
)

// TrackEnd reports that a track finished streaming on a call.
type TrackEnd struct {
	ChatID  int64
	TrackID string
}

// call tracks one simulated voice call.
type call struct {
	trackID     string
	timerCancel func()
	paused      bool
	remaining   time.Duration // remaining stream time while paused
	endTime     time.Time     // wall-clock end while streaming
}

// Loopback is an in-process voice transport. It plays nothing; it keeps
// per-call stream clocks and reports end of stream on a channel.
type Loopback struct {
	mu      sync.Mutex
	calls   map[int64]*call
	latency time.Duration
	events  chan TrackEnd
	closed  bool
}

// NewLoopback creates a loopback transport. latency is applied to every
// attach to simulate call join time; zero disables it.
func NewLoopback(latency time.Duration) *Loopback {
	return &Loopback{
		calls:   make(map[int64]*call),
		latency: latency,
		events:  make(chan TrackEnd, 16),
	}
}

// Events returns the end-of-stream channel. It is closed by Close.
func (l *Loopback) Events() <-chan TrackEnd {
	return l.events
}

// Attach joins the chat's call (or replaces the stream on an existing
// call) and starts streaming the track from seek.
func (l *Loopback) Attach(ctx context.Context, chatID int64, t track.Track, seek time.Duration) error {
	if l.latency > 0 {
		select {
		case <-time.After(l.latency):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "attach interrupted")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("transport is closed")
	}

	c, ok := l.calls[chatID]
	if !ok {
		c = &call{}
		l.calls[chatID] = c
	}
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}

	c.trackID = t.ID
	c.paused = false
	c.remaining = 0
	c.endTime = time.Time{}

	// Live streams have no known end.
	if t.IsLive() {
		zlog.Debug().Msgf("voice: attached live stream: chat=%d track=%s", chatID, t.ID)
		return nil
	}

	remaining := t.Duration - seek
	if remaining < 0 {
		remaining = 0
	}
	l.startEndTimerLocked(chatID, c, remaining)
	zlog.Debug().Msgf("voice: attached: chat=%d track=%s remaining=%v", chatID, t.ID, remaining)
	return nil
}

// Detach leaves the chat's call. Detaching an unknown chat is a no-op.
func (l *Loopback) Detach(_ context.Context, chatID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.calls[chatID]
	if !ok {
		return nil
	}
	if c.timerCancel != nil {
		c.timerCancel()
	}
	delete(l.calls, chatID)
	zlog.Debug().Msgf("voice: detached: chat=%d", chatID)
	return nil
}

// Pause freezes the chat's stream clock.
func (l *Loopback) Pause(_ context.Context, chatID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.calls[chatID]
	if !ok {
		return errors.Newf("no call for chat %d", chatID)
	}
	if c.paused {
		return nil
	}

	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
		c.remaining = c.endTime.Sub(toWallTime(time.Now()))
		if c.remaining < 0 {
			c.remaining = 0
		}
	}
	c.paused = true
	return nil
}

// Resume restarts the chat's stream clock from where Pause froze it.
func (l *Loopback) Resume(_ context.Context, chatID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.calls[chatID]
	if !ok {
		return errors.Newf("no call for chat %d", chatID)
	}
	if !c.paused {
		return nil
	}

	c.paused = false
	if c.remaining > 0 {
		l.startEndTimerLocked(chatID, c, c.remaining)
		c.remaining = 0
	}
	return nil
}

// Close ends all calls and closes the events channel.
func (l *Loopback) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true

	for chatID, c := range l.calls {
		if c.timerCancel != nil {
			c.timerCancel()
		}
		delete(l.calls, chatID)
	}
	close(l.events)
}

// startEndTimerLocked arms the end-of-stream timer. Must be called with
// the mutex held.
func (l *Loopback) startEndTimerLocked(chatID int64, c *call, remaining time.Duration) {
	trackID := c.trackID
	c.endTime = toWallTime(time.Now()).Add(remaining)
	c.timerCancel = startWallClockTimer(remaining, func() {
		l.onStreamEnd(chatID, trackID)
	})
}

// onStreamEnd clears the ended stream and reports it. The call stays
// attached; the session decides whether to stream the next track or
// detach. The mutex is held through the send so Close cannot close the
// channel mid-report; the send never blocks.
func (l *Loopback) onStreamEnd(chatID int64, trackID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.calls[chatID]
	if !ok || c.trackID != trackID || l.closed {
		return
	}
	c.timerCancel = nil
	c.endTime = time.Time{}

	select {
	case l.events <- TrackEnd{ChatID: chatID, TrackID: trackID}:
	default:
		// Progress ticks detect completion too, so a dropped report
		// delays the advance by at most one tick.
		zlog.Warn().Msgf("voice: end-of-stream report dropped: chat=%d track=%s", chatID, trackID)
	}
}

// startWallClockTimer triggers callback after duration measured on the
// wall clock, so suspend and clock slew do not stretch the stream.
// Returns a cancel function.
func startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).After(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
