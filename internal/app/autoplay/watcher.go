package autoplay

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/notification"
	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/config"
)

// refillTimeout bounds one refill round: proposal plus dispatch of
// every proposed query.
const refillTimeout = 30 * time.Second

// Watcher restarts playback from autoplay proposals when a chat's
// queue runs out. Proposals are dispatched as normal commands, so
// resolution and admission apply unchanged.
type Watcher struct {
	registry  *registry.Registry
	hub       *notification.Hub
	chain     *Chain
	requester track.Requester
	count     int

	subID string
	feed  <-chan notification.Envelope
	done  chan struct{}
}

// NewWatcher creates a watcher over the given chain.
func NewWatcher(reg *registry.Registry, hub *notification.Hub, chain *Chain, cfg config.AutoplayConfig) *Watcher {
	count := cfg.Count
	if count <= 0 {
		count = 1
	}
	return &Watcher{
		registry:  reg,
		hub:       hub,
		chain:     chain,
		requester: track.Requester{Name: cfg.Requester, Type: track.RequesterTypeAutoplay},
		count:     count,
		done:      make(chan struct{}),
	}
}

// Start subscribes to the event feed and begins watching.
func (w *Watcher) Start() {
	w.subID, w.feed = w.hub.Subscribe(0, 64)
	go w.run()
	zlog.Info().Msgf("autoplay: watcher started: count=%d providers=%d",
		w.count, len(w.chain.Providers()))
}

// Stop unsubscribes and waits for the watcher goroutine to exit. It is
// a no-op if Start was never called.
func (w *Watcher) Stop() {
	if w.feed == nil {
		return
	}
	w.hub.Unsubscribe(w.subID)
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)
	for env := range w.feed {
		if env.Event.Type != playback.EventQueueEmpty {
			continue
		}
		w.refill(env.Event.ChatID)
	}
}

// refill proposes queries for the chat and dispatches them. The first
// accepted proposal starts playback; the rest queue behind it.
func (w *Watcher) refill(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), refillTimeout)
	defer cancel()

	var seed track.Track
	var recent []track.Track
	if st, err := w.registry.Status(chatID); err == nil {
		recent = st.History
		if len(recent) > 0 {
			seed = recent[len(recent)-1]
		}
	}

	queries := w.chain.Propose(ctx, Request{
		ChatID: chatID,
		Count:  w.count,
		Seed:   seed,
		Recent: recent,
	})
	if len(queries) == 0 {
		zlog.Debug().Msgf("autoplay: nothing to propose: chat=%d", chatID)
		return
	}

	queued := 0
	for _, q := range queries {
		kind := registry.CmdQueueAdd
		if queued == 0 {
			kind = registry.CmdPlay
		}
		if _, err := w.registry.Dispatch(ctx, chatID, registry.Command{
			Kind:      kind,
			Query:     q,
			Requester: w.requester,
		}); err != nil {
			zlog.Warn().Msgf("autoplay: proposal rejected: chat=%d query=%q err=%v", chatID, q, err)
			continue
		}
		queued++
	}
	zlog.Info().Msgf("autoplay: refilled: chat=%d proposed=%d queued=%d", chatID, len(queries), queued)
}
