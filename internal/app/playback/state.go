// Package playback provides the per-chat playback session state machine.
package playback

// State represents the playback session state.
type State int

const (
	StateIdle     State = iota // No call, no track
	StateJoining               // Voice attach in progress
	StatePlaying               // Track is playing
	StatePaused                // Track is paused
	StateStopping              // Teardown in progress
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// LoopMode controls what happens when the current track ends.
type LoopMode int

const (
	LoopOff   LoopMode = iota // Advance through the queue
	LoopTrack                 // Replay the current track from the start
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopTrack:
		return "track"
	default:
		return "unknown"
	}
}

// ParseLoopMode parses a loop mode string. Unknown values return LoopOff
// with ok=false.
func ParseLoopMode(s string) (LoopMode, bool) {
	switch s {
	case "off", "":
		return LoopOff, true
	case "track":
		return LoopTrack, true
	default:
		return LoopOff, false
	}
}
