package httpapi

import (
	"time"

	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/domain/track"
)

// trackDTO is the wire form of a track.
type trackDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	ArtworkURL  string  `json:"artwork_url,omitempty"`
	DurationSec float64 `json:"duration_sec"`
	URL         string  `json:"url"`
	Source      string  `json:"source,omitempty"`
	Live        bool    `json:"live,omitempty"`
}

func toTrackDTO(t track.Track) *trackDTO {
	if t.IsZero() {
		return nil
	}
	return &trackDTO{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		ArtworkURL:  t.ArtworkURL,
		DurationSec: t.Duration.Seconds(),
		URL:         t.URL,
		Source:      t.Source,
		Live:        t.IsLive(),
	}
}

// statusDTO is the wire form of a session status. PositionSec is live:
// for a playing session it includes wall-clock time since the snapshot
// was taken.
type statusDTO struct {
	ChatID      int64      `json:"chat_id"`
	State       string     `json:"state"`
	Track       *trackDTO  `json:"track,omitempty"`
	PositionSec float64    `json:"position_sec"`
	Loop        string     `json:"loop"`
	QueueLen    int        `json:"queue_len"`
	Generation  int64      `json:"generation"`
	LastPersist *time.Time `json:"last_persist,omitempty"`
	History     []trackDTO `json:"history,omitempty"`
}

func toStatusDTO(st playback.Status) statusDTO {
	pos := st.Position
	if st.State == playback.StatePlaying && !st.PositionAt.IsZero() {
		pos += time.Since(st.PositionAt)
		if st.Track.Duration > 0 && pos > st.Track.Duration {
			pos = st.Track.Duration
		}
	}

	var history []trackDTO
	for _, t := range st.History {
		if dto := toTrackDTO(t); dto != nil {
			history = append(history, *dto)
		}
	}

	dto := statusDTO{
		ChatID:      st.ChatID,
		State:       st.State.String(),
		Track:       toTrackDTO(st.Track),
		PositionSec: pos.Seconds(),
		Loop:        st.Loop.String(),
		QueueLen:    st.QueueLen,
		Generation:  st.Generation,
		History:     history,
	}
	if !st.LastPersist.IsZero() {
		t := st.LastPersist
		dto.LastPersist = &t
	}
	return dto
}

// queueEntryDTO is the wire form of one queued track.
type queueEntryDTO struct {
	Index         int       `json:"index"`
	Track         trackDTO  `json:"track"`
	Requester     string    `json:"requester,omitempty"`
	RequesterType string    `json:"requester_type,omitempty"`
	AddedAt       time.Time `json:"added_at"`
}

// queuePageDTO is one page of a chat's queue. Page is the effective
// page after clamping, so Index lines up with queue positions.
type queuePageDTO struct {
	ChatID     int64           `json:"chat_id"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
	Entries    []queueEntryDTO `json:"entries"`
}

func toQueuePageDTO(chatID int64, page, perPage, totalPages int, entries []track.QueueEntry) queuePageDTO {
	dto := queuePageDTO{
		ChatID:     chatID,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		Entries:    make([]queueEntryDTO, 0, len(entries)),
	}
	base := (page - 1) * perPage
	for i, e := range entries {
		t := toTrackDTO(e.Track)
		if t == nil {
			continue
		}
		dto.Entries = append(dto.Entries, queueEntryDTO{
			Index:         base + i,
			Track:         *t,
			Requester:     e.Requester.Name,
			RequesterType: string(e.Requester.Type),
			AddedAt:       e.AddedAt,
		})
	}
	return dto
}

// commandResponse is the wire form of a command outcome.
type commandResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Track    *trackDTO `json:"track,omitempty"`
	Enqueued bool      `json:"enqueued,omitempty"`
	Position int       `json:"position,omitempty"`
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the health endpoint payload.
type healthResponse struct {
	Status       string `json:"status"`
	UptimeSec    int64  `json:"uptime_sec"`
	Sessions     int    `json:"sessions"`
	StoreBackend string `json:"store_backend"`
}

// statusListResponse wraps the all-chats status listing.
type statusListResponse struct {
	Count int         `json:"count"`
	Chats []statusDTO `json:"chats"`
}

// Request bodies.

type playRequest struct {
	Query     string  `json:"query"`
	SeekSec   float64 `json:"seek_sec,omitempty"`
	Requester string  `json:"requester,omitempty"`
}

type seekRequest struct {
	PositionSec float64 `json:"position_sec"`
}

type loopRequest struct {
	Mode string `json:"mode"`
}

type skipRequest struct {
	To *int `json:"to,omitempty"` // queue index to jump to; nil skips to the next track
}

type moveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}
