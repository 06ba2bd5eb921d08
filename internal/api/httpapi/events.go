package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/notification"
)

const (
	// eventBuffer sizes the per-connection hub subscription. A client
	// that stalls longer than this many events sees a sequence gap.
	eventBuffer = 64

	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// eventDTO is the wire form of one playback event.
type eventDTO struct {
	SequenceNo  uint64    `json:"sequence_no"`
	Type        string    `json:"type"`
	ChatID      int64     `json:"chat_id"`
	Track       *trackDTO `json:"track,omitempty"`
	PositionSec float64   `json:"position_sec"`
	DurationSec float64   `json:"duration_sec,omitempty"`
	State       string    `json:"state"`
	Kind        string    `json:"kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

func toEventDTO(env notification.Envelope) *eventDTO {
	e := env.Event
	return &eventDTO{
		SequenceNo:  env.SequenceNo,
		Type:        e.Type.String(),
		ChatID:      e.ChatID,
		Track:       toTrackDTO(e.Track),
		PositionSec: e.Position.Seconds(),
		DurationSec: e.Duration.Seconds(),
		State:       e.State.String(),
		Kind:        string(e.Kind),
		Detail:      e.Detail,
		At:          e.At,
	}
}

// wsMessage is one websocket frame. The first frame on every connection
// is initial_state; every later frame is event.
type wsMessage struct {
	Type  string      `json:"type"`
	Chats []statusDTO `json:"chats,omitempty"`
	Event *eventDTO   `json:"event,omitempty"`
}

// handleEvents streams playback events over a websocket. ?chat= narrows
// the feed to one chat; without it the client sees every chat.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	var chatID int64
	if raw := r.URL.Query().Get("chat"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "bad_chat_id", "chat must be an integer")
			return
		}
		chatID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("httpapi: websocket upgrade failed: err=%v", err)
		return
	}
	defer conn.Close()

	subID, feed := h.hub.Subscribe(chatID, eventBuffer)
	defer h.hub.Unsubscribe(subID)
	zlog.Debug().Msgf("httpapi: event stream opened: sub=%s chat=%d remote=%s", subID, chatID, r.RemoteAddr)

	// Current state goes out before any live event so the client can
	// render immediately.
	initial := wsMessage{Type: "initial_state"}
	if chatID != 0 {
		if st, err := h.registry.Status(chatID); err == nil {
			initial.Chats = []statusDTO{toStatusDTO(st)}
		}
	} else {
		for _, st := range h.registry.StatusAll() {
			initial.Chats = append(initial.Chats, toStatusDTO(st))
		}
	}
	if err := writeFrame(conn, initial); err != nil {
		return
	}

	// Reader goroutine surfaces client-side close. Inbound payloads are
	// discarded, the feed is one-way.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env, ok := <-feed:
			if !ok {
				// Hub closed, server is shutting down.
				return
			}
			if err := writeFrame(conn, wsMessage{Type: "event", Event: toEventDTO(env)}); err != nil {
				zlog.Debug().Msgf("httpapi: event stream write failed: sub=%s err=%v", subID, err)
				return
			}
		case <-closed:
			zlog.Debug().Msgf("httpapi: event stream closed by client: sub=%s", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
