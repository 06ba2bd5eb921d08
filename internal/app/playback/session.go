package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/queue"
	"github.com/osa030/callbox/internal/domain/snapshot"
	"github.com/osa030/callbox/internal/domain/track"
)

// Errors
var (
	ErrNoTrack           = errors.New("no track playing")
	ErrSourceUnavailable = errors.New("track source unavailable")
	ErrAttachFailed      = errors.New("voice transport attach failed")
	ErrSeekOutOfRange    = errors.New("seek position out of range")
	ErrStaleGeneration   = errors.New("stale session generation")
	ErrNotIdle           = errors.New("session is not idle")
)

// Config holds per-session configuration.
type Config struct {
	ProgressInterval time.Duration // Progress task tick interval
	AttachTimeout    time.Duration // Upper bound on one voice attach
	HistorySize      int           // Played tracks kept for status output
}

// Transport is the voice transport a session drives. Attach replaces any
// existing stream for the chat; the transport enforces at most one live
// connection per chat.
type Transport interface {
	Attach(ctx context.Context, chatID int64, t track.Track, seek time.Duration) error
	Detach(ctx context.Context, chatID int64) error
	Pause(ctx context.Context, chatID int64) error
	Resume(ctx context.Context, chatID int64) error
}

// SnapshotStore is the slice of the persistence store a session writes to.
type SnapshotStore interface {
	Put(ctx context.Context, snap snapshot.Snapshot) error
	Delete(ctx context.Context, chatID int64) error
}

// Notifier delivers events to the presentation layer. Publish must never
// block; a slow consumer must not stall a session worker.
type Notifier interface {
	Publish(Event)
}

// Status is a read-only projection of a session, safe to read from any
// goroutine. Position is the elapsed time at PositionAt; while playing,
// callers add wall-clock time since PositionAt for a live value.
type Status struct {
	ChatID      int64
	State       State
	Track       track.Track
	Position    time.Duration
	PositionAt  time.Time
	Loop        LoopMode
	QueueLen    int
	Generation  int64
	LastPersist time.Time
	History     []track.Track
}

// Session is the playback state machine for one chat. All mutating
// methods run on the chat's single worker goroutine; only Status is safe
// to call from elsewhere. The session owns its queue and its progress
// task, and is the only writer of its chat's snapshot.
type Session struct {
	chatID    int64
	config    Config
	transport Transport
	store     SnapshotStore
	notifier  Notifier

	// post hands a closure to the owning worker for serialized
	// execution. Used by the progress task; must not block.
	post func(func(context.Context))

	state        State
	generation   int64
	current      track.Track
	queue        *queue.Queue
	loop         LoopMode
	basePos      time.Duration // position at the start of the current segment
	segmentStart time.Time     // wall-clock start of the current playing segment
	history      []track.Track
	lastPersist  time.Time

	progressCancel func()

	statusMu sync.RWMutex
	status   Status
}

// NewSession creates an idle session for one chat.
func NewSession(chatID int64, cfg Config, transport Transport, store SnapshotStore, notifier Notifier, post func(func(context.Context))) *Session {
	s := &Session{
		chatID:    chatID,
		config:    cfg,
		transport: transport,
		store:     store,
		notifier:  notifier,
		post:      post,
		state:     StateIdle,
		queue:     queue.New(),
	}
	s.updateStatus()
	return s
}

// ChatID returns the chat identity this session belongs to.
func (s *Session) ChatID() int64 {
	return s.chatID
}

// State returns the current state. Worker-confined.
func (s *Session) State() State {
	return s.state
}

// Generation returns the current incarnation counter. Worker-confined.
func (s *Session) Generation() int64 {
	return s.generation
}

// CurrentTrack returns the active track (zero when idle). Worker-confined.
func (s *Session) CurrentTrack() track.Track {
	return s.current
}

// Queue exposes the owned queue for worker-confined use.
func (s *Session) Queue() *queue.Queue {
	return s.queue
}

// Loop returns the loop mode. Worker-confined.
func (s *Session) Loop() LoopMode {
	return s.loop
}

// Status returns a read-only projection, safe from any goroutine.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Start resolves nothing; it receives an already-resolved track and
// drives Idle/Playing/Paused through Joining into Playing. The previous
// track, if any, is replaced without an intermediate detach.
func (s *Session) Start(ctx context.Context, t track.Track, seek time.Duration) error {
	return s.start(ctx, t, seek, EventTrackStarted)
}

func (s *Session) start(ctx context.Context, t track.Track, seek time.Duration, startEvent EventType) error {
	s.stopProgress()
	s.generation++
	s.state = StateJoining
	s.current = t
	s.basePos = seek
	s.segmentStart = time.Time{}
	s.updateStatus()

	zlog.Debug().Msgf("playback: attaching: chat=%d track=%s seek=%v gen=%d",
		s.chatID, t, seek, s.generation)

	attachCtx, cancel := context.WithTimeout(ctx, s.config.AttachTimeout)
	defer cancel()

	if err := s.transport.Attach(attachCtx, s.chatID, t, seek); err != nil {
		s.collapse(ErrorKindAttachFailed, t, err)
		return errors.Wrapf(ErrAttachFailed, "chat %d track %s: %v", s.chatID, t, err)
	}

	s.state = StatePlaying
	s.basePos = seek
	s.segmentStart = toWallTime(time.Now())
	s.persist(ctx)
	s.startProgress()
	s.updateStatus()

	zlog.Info().Msgf("playback: started: chat=%d track=%s seek=%v", s.chatID, t, seek)

	s.publish(Event{
		Type:     startEvent,
		ChatID:   s.chatID,
		Track:    t,
		Position: seek,
		Duration: t.Duration,
		State:    s.state,
	})
	return nil
}

// Enqueue appends a track to the queue and returns its position. The
// snapshot is refreshed so a crash does not lose the entry.
func (s *Session) Enqueue(ctx context.Context, t track.Track, requester track.Requester) int {
	pos := s.queue.Enqueue(t, requester)
	s.afterQueueEdit(ctx)
	zlog.Info().Msgf("playback: enqueued: chat=%d track=%s position=%d", s.chatID, t, pos)
	return pos
}

// RemoveFromQueue removes the entry at index and returns it.
func (s *Session) RemoveFromQueue(ctx context.Context, index int) (track.QueueEntry, error) {
	entry, err := s.queue.Remove(index)
	if err != nil {
		return track.QueueEntry{}, err
	}
	s.afterQueueEdit(ctx)
	return entry, nil
}

// MoveInQueue moves the entry at from to position to.
func (s *Session) MoveInQueue(ctx context.Context, from, to int) error {
	if err := s.queue.Move(from, to); err != nil {
		return err
	}
	s.afterQueueEdit(ctx)
	return nil
}

// ShuffleQueue randomizes the queue order in place.
func (s *Session) ShuffleQueue(ctx context.Context) {
	s.queue.Shuffle()
	s.afterQueueEdit(ctx)
}

// ClearQueue drops all queued entries. The current track keeps playing.
func (s *Session) ClearQueue(ctx context.Context) {
	s.queue.Clear()
	s.afterQueueEdit(ctx)
}

// afterQueueEdit refreshes the snapshot so queue edits survive a crash.
func (s *Session) afterQueueEdit(ctx context.Context) {
	if !s.current.IsZero() {
		s.persist(ctx)
	}
	s.updateStatus()
}

// Pause freezes the position. Idempotent: pausing a paused session is a
// no-op. The progress task keeps running but suspends reporting and
// persistence while paused.
func (s *Session) Pause(ctx context.Context) error {
	if s.state == StatePaused {
		return nil
	}
	if s.state != StatePlaying {
		return errors.Wrapf(ErrNoTrack, "chat %d is %s", s.chatID, s.state)
	}

	s.basePos = s.position(time.Now())
	s.segmentStart = time.Time{}
	s.state = StatePaused

	if err := s.transport.Pause(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: transport pause failed: chat=%d err=%v", s.chatID, err)
	}

	// Persist now so a crash while paused resumes at the paused position.
	s.persist(ctx)
	s.updateStatus()

	zlog.Info().Msgf("playback: paused: chat=%d track=%s position=%v", s.chatID, s.current, s.basePos)
	return nil
}

// Resume continues a paused session. Idempotent when already playing.
func (s *Session) Resume(ctx context.Context) error {
	if s.state == StatePlaying {
		return nil
	}
	if s.state != StatePaused {
		return errors.Wrapf(ErrNoTrack, "chat %d is %s", s.chatID, s.state)
	}

	s.state = StatePlaying
	s.segmentStart = toWallTime(time.Now())

	if err := s.transport.Resume(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: transport resume failed: chat=%d err=%v", s.chatID, err)
	}

	s.persist(ctx)
	s.updateStatus()

	zlog.Info().Msgf("playback: resumed: chat=%d track=%s position=%v", s.chatID, s.current, s.basePos)
	return nil
}

// Skip ends the current track and advances. Loop mode is honored, so a
// skip with loop=track replays the same track from the start.
func (s *Session) Skip(ctx context.Context) error {
	if s.state != StatePlaying && s.state != StatePaused {
		return errors.Wrapf(ErrNoTrack, "chat %d is %s", s.chatID, s.state)
	}
	return s.advance(ctx)
}

// SkipTo jumps to the queue entry at index, dropping everything before
// it. Loop mode is bypassed: the user named a specific entry.
func (s *Session) SkipTo(ctx context.Context, index int) error {
	if err := s.queue.SkipTo(index); err != nil {
		return err
	}

	if !s.current.IsZero() {
		s.finishCurrent()
	}

	// SkipTo validated the index, so the queue has at least one entry.
	next, _ := s.queue.DequeueNext(track.Track{}, false)
	return s.start(ctx, next, 0, EventTrackStarted)
}

// Seek moves the position within the current track by re-attaching the
// transport at the offset. The session stays in its current state.
func (s *Session) Seek(ctx context.Context, pos time.Duration) error {
	if s.state != StatePlaying && s.state != StatePaused {
		return errors.Wrapf(ErrNoTrack, "chat %d is %s", s.chatID, s.state)
	}
	if pos < 0 || (!s.current.IsLive() && pos > s.current.Duration) {
		return errors.Wrapf(ErrSeekOutOfRange, "chat %d seek %v, track duration %v", s.chatID, pos, s.current.Duration)
	}

	wasPaused := s.state == StatePaused

	attachCtx, cancel := context.WithTimeout(ctx, s.config.AttachTimeout)
	defer cancel()
	if err := s.transport.Attach(attachCtx, s.chatID, s.current, pos); err != nil {
		t := s.current
		s.collapse(ErrorKindAttachFailed, t, err)
		return errors.Wrapf(ErrAttachFailed, "chat %d seek %v: %v", s.chatID, pos, err)
	}

	s.basePos = pos
	if wasPaused {
		s.segmentStart = time.Time{}
		if err := s.transport.Pause(ctx, s.chatID); err != nil {
			zlog.Warn().Msgf("playback: transport pause after seek failed: chat=%d err=%v", s.chatID, err)
		}
	} else {
		s.segmentStart = toWallTime(time.Now())
	}

	s.persist(ctx)
	s.updateStatus()

	zlog.Info().Msgf("playback: seek: chat=%d track=%s position=%v", s.chatID, s.current, pos)
	return nil
}

// SetLoop changes the loop mode and refreshes the snapshot.
func (s *Session) SetLoop(ctx context.Context, mode LoopMode) {
	s.loop = mode
	if !s.current.IsZero() {
		s.persist(ctx)
	}
	s.updateStatus()
	zlog.Info().Msgf("playback: loop mode: chat=%d mode=%s", s.chatID, mode)
}

// Stop tears the session down: progress task cancelled, queue cleared,
// transport detached, snapshot deleted. Always succeeds from the
// caller's perspective; a detach failure is logged, not surfaced,
// because the end state (no active session) holds regardless.
func (s *Session) Stop(ctx context.Context) error {
	s.state = StateStopping
	s.updateStatus()

	s.stopProgress()
	s.generation++
	s.queue.Clear()

	if err := s.transport.Detach(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: detach failed on stop: chat=%d err=%v", s.chatID, err)
	}
	if err := s.store.Delete(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: snapshot delete failed on stop: chat=%d err=%v", s.chatID, err)
	}

	s.current = track.Track{}
	s.basePos = 0
	s.segmentStart = time.Time{}
	s.loop = LoopOff
	s.state = StateIdle
	s.updateStatus()

	zlog.Info().Msgf("playback: stopped: chat=%d", s.chatID)
	return nil
}

// Suspend persists a final snapshot and releases the transport without
// deleting anything, so a clean restart resumes where it left off.
// Used only during process shutdown.
func (s *Session) Suspend(ctx context.Context) {
	s.stopProgress()
	s.generation++

	if s.current.IsZero() {
		return
	}

	s.persist(ctx)
	if err := s.transport.Detach(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: detach failed on suspend: chat=%d err=%v", s.chatID, err)
	}
	zlog.Info().Msgf("playback: suspended: chat=%d track=%s position=%v",
		s.chatID, s.current, s.basePos)
}

// TrackEnded handles an end-of-stream signal from the transport. Signals
// for anything but the currently playing track are stale and discarded.
func (s *Session) TrackEnded(ctx context.Context, trackID string) {
	if s.state != StatePlaying || s.current.ID != trackID {
		zlog.Debug().Msgf("playback: stale end-of-stream: chat=%d track=%s state=%s",
			s.chatID, trackID, s.state)
		return
	}
	if err := s.advance(ctx); err != nil {
		zlog.Error().Msgf("playback: advance after end-of-stream failed: chat=%d err=%v", s.chatID, err)
	}
}

// RestoreFromSnapshot rebuilds the session from a persisted snapshot and
// re-attaches at the estimated position. Used only by the startup resume
// pass, before commands are accepted.
func (s *Session) RestoreFromSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	if s.state != StateIdle {
		return errors.Wrapf(ErrNotIdle, "chat %d is %s", s.chatID, s.state)
	}

	s.queue.Restore(snapshot.ToEntries(snap.Queue))
	if mode, ok := ParseLoopMode(snap.Loop); ok {
		s.loop = mode
	}

	t := snap.Track.ToTrack()
	target := snap.ResumePosition(time.Now())

	// The track may have run out while the process was down.
	if !t.IsLive() && target >= t.Duration {
		if s.loop == LoopTrack {
			return s.start(ctx, t, 0, EventResumed)
		}
		next, ok := s.queue.DequeueNext(track.Track{}, false)
		if !ok {
			return errors.Wrapf(ErrNoTrack, "chat %d: track finished while down and queue is empty", s.chatID)
		}
		return s.start(ctx, next, 0, EventResumed)
	}

	return s.start(ctx, t, target, EventResumed)
}

// advance finishes the current track and starts the next one, honoring
// loop mode. An empty queue sends the session to idle.
func (s *Session) advance(ctx context.Context) error {
	next, ok := s.queue.DequeueNext(s.current, s.loop == LoopTrack)
	s.finishCurrent()

	if !ok {
		s.toIdleEmpty(ctx)
		return nil
	}
	// A looped track always restarts from zero.
	return s.start(ctx, next, 0, EventTrackStarted)
}

// finishCurrent records the current track in history and emits trackEnded.
func (s *Session) finishCurrent() {
	if s.current.IsZero() {
		return
	}
	ended := s.current
	endPos := s.position(time.Now())

	s.history = append(s.history, ended)
	if s.config.HistorySize > 0 && len(s.history) > s.config.HistorySize {
		s.history = s.history[len(s.history)-s.config.HistorySize:]
	}

	s.publish(Event{
		Type:     EventTrackEnded,
		ChatID:   s.chatID,
		Track:    ended,
		Position: endPos,
		Duration: ended.Duration,
		State:    s.state,
	})
}

// toIdleEmpty is the queue-ran-out path: detach, drop the snapshot,
// report queueEmpty.
func (s *Session) toIdleEmpty(ctx context.Context) {
	s.stopProgress()
	s.generation++
	s.current = track.Track{}
	s.basePos = 0
	s.segmentStart = time.Time{}
	s.state = StateIdle

	if err := s.transport.Detach(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: detach failed on queue empty: chat=%d err=%v", s.chatID, err)
	}
	if err := s.store.Delete(ctx, s.chatID); err != nil {
		zlog.Warn().Msgf("playback: snapshot delete failed: chat=%d err=%v", s.chatID, err)
	}
	s.updateStatus()

	zlog.Info().Msgf("playback: queue empty, session idle: chat=%d", s.chatID)

	s.publish(Event{
		Type:   EventQueueEmpty,
		ChatID: s.chatID,
		State:  s.state,
	})
}

// collapse is the error path out of any transition: back to Idle with a
// reported failure. The queue is left intact so a retry can succeed.
func (s *Session) collapse(kind ErrorKind, t track.Track, cause error) {
	s.stopProgress()
	s.generation++
	s.current = track.Track{}
	s.basePos = 0
	s.segmentStart = time.Time{}
	s.state = StateIdle
	s.updateStatus()

	zlog.Error().Msgf("playback: session error: chat=%d kind=%s track=%s err=%v",
		s.chatID, kind, t, cause)

	s.publish(Event{
		Type:   EventSessionError,
		ChatID: s.chatID,
		Track:  t,
		State:  s.state,
		Kind:   kind,
		Detail: cause.Error(),
	})
}

// startProgress launches the progress task for the current incarnation.
// Ticks are posted to the session worker; a tick whose generation no
// longer matches is discarded, which guarantees no persistence write can
// land after the task is cancelled.
func (s *Session) startProgress() {
	if s.progressCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := s.generation

	go func() {
		ticker := time.NewTicker(s.config.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.post(func(cmdCtx context.Context) {
					s.tick(cmdCtx, gen)
				})
			}
		}
	}()

	s.progressCancel = cancel
}

// stopProgress cancels the progress task if one is running.
func (s *Session) stopProgress() {
	if s.progressCancel != nil {
		s.progressCancel()
		s.progressCancel = nil
	}
}

// tick is one progress task beat, executed on the session worker.
func (s *Session) tick(ctx context.Context, gen int64) {
	if gen != s.generation {
		// Superseded incarnation; discard silently.
		return
	}
	if s.state != StatePlaying {
		return
	}

	pos := s.position(time.Now())

	// Completion by elapsed time, for transports without end signals.
	if !s.current.IsLive() && pos >= s.current.Duration {
		if err := s.advance(ctx); err != nil {
			zlog.Error().Msgf("playback: advance after track end failed: chat=%d err=%v", s.chatID, err)
		}
		return
	}

	s.persist(ctx)
	s.updateStatus()

	s.publish(Event{
		Type:     EventProgress,
		ChatID:   s.chatID,
		Track:    s.current,
		Position: pos,
		Duration: s.current.Duration,
		State:    s.state,
	})
}

// position returns the elapsed time in the current track at `now`.
// Monotonically non-decreasing while playing.
func (s *Session) position(now time.Time) time.Duration {
	if s.state == StatePlaying && !s.segmentStart.IsZero() {
		if d := toWallTime(now).Sub(s.segmentStart); d > 0 {
			return s.basePos + d
		}
	}
	return s.basePos
}

// persist writes the snapshot for this chat. Failures degrade to
// in-memory operation: logged, never fatal, playback continues.
func (s *Session) persist(ctx context.Context) {
	if s.current.IsZero() {
		return
	}

	now := time.Now()
	snap := snapshot.Snapshot{
		ChatID:    s.chatID,
		Track:     snapshot.FromTrack(s.current),
		PositionS: int64(s.position(now) / time.Second),
		Queue:     snapshot.FromEntries(s.queue.Snapshot()),
		Loop:      s.loop.String(),
		Playing:   s.state == StatePlaying,
		SavedAt:   now,
	}

	if err := s.store.Put(ctx, snap); err != nil {
		zlog.Warn().Msgf("playback: snapshot write failed, continuing in memory: chat=%d err=%v",
			s.chatID, err)
		return
	}
	s.lastPersist = now
}

// publish sends an event without ever blocking the worker.
func (s *Session) publish(e Event) {
	if s.notifier == nil {
		return
	}
	e.At = time.Now()
	s.notifier.Publish(e)
}

// updateStatus refreshes the shared read-only projection.
func (s *Session) updateStatus() {
	now := time.Now()
	st := Status{
		ChatID:      s.chatID,
		State:       s.state,
		Track:       s.current,
		Position:    s.position(now),
		PositionAt:  now,
		Loop:        s.loop,
		QueueLen:    s.queue.Len(),
		Generation:  s.generation,
		LastPersist: s.lastPersist,
	}
	if len(s.history) > 0 {
		st.History = make([]track.Track, len(s.history))
		copy(st.History, s.history)
	}

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// toWallTime returns the time with monotonic clock stripped, so segment
// arithmetic follows the wall clock across suspend/resume of the host.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
