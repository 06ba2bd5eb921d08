package registry

import (
	"time"

	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/domain/track"
)

// CommandKind identifies a session command.
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdPause
	CmdResume
	CmdSkip
	CmdSkipTo
	CmdStop
	CmdSeek
	CmdQueueAdd
	CmdQueueRemove
	CmdQueueMove
	CmdQueueShuffle
	CmdQueueClear
	CmdSetLoop

	// cmdSuspend is internal: final snapshot on process shutdown.
	cmdSuspend
)

// String returns the string representation of the command kind.
func (k CommandKind) String() string {
	switch k {
	case CmdPlay:
		return "play"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdSkip:
		return "skip"
	case CmdSkipTo:
		return "skipTo"
	case CmdStop:
		return "stop"
	case CmdSeek:
		return "seek"
	case CmdQueueAdd:
		return "queueAdd"
	case CmdQueueRemove:
		return "queueRemove"
	case CmdQueueMove:
		return "queueMove"
	case CmdQueueShuffle:
		return "queueShuffle"
	case CmdQueueClear:
		return "queueClear"
	case CmdSetLoop:
		return "setLoop"
	case cmdSuspend:
		return "suspend"
	default:
		return "unknown"
	}
}

// Command is one state-changing request for a chat. Kind selects the
// operation; the other fields carry its arguments.
type Command struct {
	Kind      CommandKind
	Query     string            // play, queueAdd: source query or track URL
	Requester track.Requester   // play, queueAdd
	Seek      time.Duration     // play (initial offset), seek
	Index     int               // skipTo, queueRemove
	From      int               // queueMove
	To        int               // queueMove
	Loop      playback.LoopMode // setLoop
}

// Result reports what a command did.
type Result struct {
	Track    track.Track // Resolved track for play and queueAdd
	Enqueued bool        // play queued the track instead of starting it
	Position int         // Queue position when enqueued
}
