// Package snapshot provides the durable projection of a playback session.
package snapshot

import (
	"time"

	"github.com/osa030/callbox/internal/domain/track"
)

// TrackRecord is the persisted form of a track. Durations are stored as
// whole seconds; sub-second accuracy is not part of the durability contract.
type TrackRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	DurationS  int64  `json:"duration_s"`
	URL        string `json:"url"`
	Source     string `json:"source,omitempty"`
}

// QueueRecord is the persisted form of one queue entry.
type QueueRecord struct {
	Track         TrackRecord `json:"track"`
	Seq           uint64      `json:"seq"`
	RequesterName string      `json:"requester_name,omitempty"`
	RequesterType string      `json:"requester_type,omitempty"`
	AddedAt       time.Time   `json:"added_at"`
}

// Snapshot is one chat's resumable playback state at a point in time.
// One record exists per chat; a crash between writes loses at most one
// write interval of position accuracy.
type Snapshot struct {
	ChatID    int64         `json:"chat_id"`
	Track     TrackRecord   `json:"track"`
	PositionS int64         `json:"position_s"`
	Queue     []QueueRecord `json:"queue,omitempty"`
	Loop      string        `json:"loop,omitempty"`
	Playing   bool          `json:"playing"`
	SavedAt   time.Time     `json:"saved_at"`
}

// FromTrack converts a domain track to its persisted form.
func FromTrack(t track.Track) TrackRecord {
	return TrackRecord{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		ArtworkURL: t.ArtworkURL,
		DurationS:  int64(t.Duration / time.Second),
		URL:        t.URL,
		Source:     t.Source,
	}
}

// ToTrack converts a persisted track record back to the domain type.
func (r TrackRecord) ToTrack() track.Track {
	return track.Track{
		ID:         r.ID,
		Title:      r.Title,
		Artist:     r.Artist,
		Album:      r.Album,
		ArtworkURL: r.ArtworkURL,
		Duration:   time.Duration(r.DurationS) * time.Second,
		URL:        r.URL,
		Source:     r.Source,
	}
}

// FromEntries converts queue entries to their persisted form.
func FromEntries(entries []track.QueueEntry) []QueueRecord {
	if len(entries) == 0 {
		return nil
	}
	records := make([]QueueRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, QueueRecord{
			Track:         FromTrack(e.Track),
			Seq:           e.Seq,
			RequesterName: e.Requester.Name,
			RequesterType: string(e.Requester.Type),
			AddedAt:       e.AddedAt,
		})
	}
	return records
}

// ToEntries converts persisted queue records back to domain entries.
func ToEntries(records []QueueRecord) []track.QueueEntry {
	if len(records) == 0 {
		return nil
	}
	entries := make([]track.QueueEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, track.QueueEntry{
			Track: r.Track.ToTrack(),
			Seq:   r.Seq,
			Requester: track.Requester{
				Name: r.RequesterName,
				Type: track.RequesterType(r.RequesterType),
			},
			AddedAt: r.AddedAt,
		})
	}
	return entries
}

// Position returns the persisted position as a duration.
func (s Snapshot) Position() time.Duration {
	return time.Duration(s.PositionS) * time.Second
}

// Age returns how long ago the snapshot was written.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt)
}

// ResumePosition estimates where playback would be at `now`. A snapshot
// written while playing advances by the wall-clock time since it was
// saved; a paused snapshot resumes exactly where it was saved. The result
// is capped at the track duration when the duration is known.
func (s Snapshot) ResumePosition(now time.Time) time.Duration {
	pos := s.Position()
	if s.Playing {
		if elapsed := now.Sub(s.SavedAt); elapsed > 0 {
			pos += elapsed
		}
	}
	if d := time.Duration(s.Track.DurationS) * time.Second; d > 0 && pos > d {
		pos = d
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}
