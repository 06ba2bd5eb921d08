// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a resolved, playable track.
// Contains only information retrieved from the track source.
type Track struct {
	ID         string        // Source track ID (e.g. Spotify track ID, file path)
	Title      string        // Track title
	Artist     string        // Artist name
	Album      string        // Album name
	ArtworkURL string        // Album art URL
	Duration   time.Duration // Track duration (zero for live streams)
	URL        string        // Playable handle (stream/page URL, opaque to core)
	Source     string        // Resolver that produced this track ("spotify", "static", ...)
}

// IsLive reports whether the track has no known duration (live stream).
func (t Track) IsLive() bool {
	return t.Duration == 0
}

// IsZero reports whether the track is the empty value (no track).
func (t Track) IsZero() bool {
	return t.ID == "" && t.URL == ""
}

// String returns "Artist - Title" for logs and status output.
func (t Track) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// RequesterType represents the type of requester.
type RequesterType string

const (
	RequesterTypeUser     RequesterType = "USER"
	RequesterTypeAdmin    RequesterType = "ADMIN"
	RequesterTypeAutoplay RequesterType = "AUTOPLAY"
	RequesterTypeSystem   RequesterType = "SYSTEM"
)

// Requester identifies who put a track into a queue. Audit/UI only,
// never used for permission decisions.
type Requester struct {
	Name string        // Display name
	Type RequesterType // Type of requester
}

// QueueEntry represents a track waiting in a playback queue.
type QueueEntry struct {
	Track     Track     // Resolved track
	Seq       uint64    // Insertion sequence number (FIFO tie-break)
	Requester Requester // Who enqueued it
	AddedAt   time.Time // Time when added to queue
}
