package playback

import (
	"time"

	"github.com/osa030/callbox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventProgress     EventType = iota // Periodic position report while playing
	EventTrackStarted                  // Track started playing
	EventTrackEnded                    // Track finished or was skipped
	EventQueueEmpty                    // Queue ran out, session went idle
	EventResumed                       // Session resumed after a restart
	EventSessionError                  // Session-level failure (attach, source, ...)
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventProgress:
		return "progress"
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventQueueEmpty:
		return "queue_empty"
	case EventResumed:
		return "resumed"
	case EventSessionError:
		return "session_error"
	default:
		return "unknown"
	}
}

// ErrorKind is the stable failure classification carried by
// EventSessionError and by API error responses.
type ErrorKind string

const (
	ErrorKindSourceUnavailable      ErrorKind = "source_unavailable"
	ErrorKindAttachFailed           ErrorKind = "attach_failed"
	ErrorKindOutOfRange             ErrorKind = "out_of_range"
	ErrorKindPersistenceUnavailable ErrorKind = "persistence_unavailable"
	ErrorKindStaleGeneration        ErrorKind = "stale_generation"
	ErrorKindAdmissionDenied        ErrorKind = "admission_denied"
)

// Event represents a playback event delivered to the presentation layer.
// Payload only; no rendering format is prescribed.
type Event struct {
	Type     EventType
	ChatID   int64
	Track    track.Track   // Zero value for events without a track
	Position time.Duration // Elapsed playback time
	Duration time.Duration // Track duration (zero for live streams)
	State    State         // Session state after the event
	Kind     ErrorKind     // Set for EventSessionError
	Detail   string        // Human-readable detail for EventSessionError
	At       time.Time     // When the event was emitted
}
