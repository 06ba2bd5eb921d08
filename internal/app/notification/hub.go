// Package notification fans playback events out to API subscribers.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/playback"
)

// Envelope wraps a playback event with a hub-wide delivery sequence
// number. Consumers can detect gaps from dropped events.
type Envelope struct {
	SequenceNo uint64         `json:"sequence_no"`
	Event      playback.Event `json:"event"`
}

// subscription is one consumer's buffered feed.
type subscription struct {
	id     string
	chatID int64 // 0 subscribes to every chat
	ch     chan Envelope
}

// Hub broadcasts playback events to subscribers. Publish never blocks:
// a subscriber whose buffer is full loses the event, and the sequence
// number tells it so. Session workers stay unaffected by slow readers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool

	seqMu sync.Mutex
	seq   uint64
}

const defaultBuffer = 16

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]*subscription),
	}
}

// Subscribe registers a consumer and returns its subscription ID and
// feed. chatID 0 receives events for every chat. buffer <= 0 selects
// the default depth.
func (h *Hub) Subscribe(chatID int64, buffer int) (string, <-chan Envelope) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscription{
		id:     uuid.New().String(),
		chatID: chatID,
		ch:     make(chan Envelope, buffer),
	}
	if h.closed {
		close(sub.ch)
		return sub.id, sub.ch
	}

	h.subs[sub.id] = sub
	zlog.Debug().Msgf("notification: subscribed: id=%s chat=%d", sub.id, chatID)
	return sub.id, sub.ch
}

// Unsubscribe removes a consumer and closes its feed.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	zlog.Debug().Msgf("notification: unsubscribed: id=%s", sub.id)
}

// Publish assigns the next sequence number and fans the event out.
// Implements playback.Notifier.
func (h *Hub) Publish(e playback.Event) {
	h.seqMu.Lock()
	h.seq++
	env := Envelope{SequenceNo: h.seq, Event: e}
	h.seqMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.chatID != 0 && sub.chatID != e.ChatID {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			zlog.Debug().Msgf("notification: subscriber full, dropping: id=%s seq=%d type=%s",
				sub.id, env.SequenceNo, e.Type)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes all subscribers and closes their feeds. Subscriptions
// made afterwards get an already-closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
