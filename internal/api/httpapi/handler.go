// Package httpapi exposes playback sessions over a JSON HTTP API.
//
// All state-changing endpoints funnel into registry.Dispatch, so HTTP
// clients get the same ordering and admission guarantees as any other
// caller. Event delivery uses a websocket feed backed by the
// notification hub.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/osa030/callbox/internal/app/notification"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/infra/config"
)

const adminTokenHeader = "X-Admin-Token"

// Handler serves the HTTP API.
type Handler struct {
	registry *registry.Registry
	hub      *notification.Hub
	token    string
	pageSize int
	backend  string
	started  time.Time
}

// New creates a Handler. An empty admin token leaves the API open.
func New(reg *registry.Registry, hub *notification.Hub, cfg *config.Config) *Handler {
	return &Handler{
		registry: reg,
		hub:      hub,
		token:    cfg.Server.AdminToken,
		pageSize: cfg.Playback.QueuePageSize,
		backend:  cfg.Store.Backend,
		started:  time.Now(),
	}
}

// Routes returns the route table. Health endpoints stay open; everything
// under /v1 requires the admin token when one is configured.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("GET /v1/chats", h.auth(h.handleStatusAll))
	mux.HandleFunc("GET /v1/chats/{chat}", h.auth(h.handleStatus))

	mux.HandleFunc("POST /v1/chats/{chat}/play", h.auth(h.handlePlay))
	mux.HandleFunc("POST /v1/chats/{chat}/pause", h.auth(h.bare(registry.CmdPause, "Playback paused")))
	mux.HandleFunc("POST /v1/chats/{chat}/resume", h.auth(h.bare(registry.CmdResume, "Playback resumed")))
	mux.HandleFunc("POST /v1/chats/{chat}/skip", h.auth(h.handleSkip))
	mux.HandleFunc("POST /v1/chats/{chat}/stop", h.auth(h.bare(registry.CmdStop, "Playback stopped")))
	mux.HandleFunc("POST /v1/chats/{chat}/seek", h.auth(h.handleSeek))
	mux.HandleFunc("POST /v1/chats/{chat}/loop", h.auth(h.handleLoop))

	mux.HandleFunc("POST /v1/chats/{chat}/queue", h.auth(h.handleQueueAdd))
	mux.HandleFunc("GET /v1/chats/{chat}/queue", h.auth(h.handleQueuePage))
	mux.HandleFunc("DELETE /v1/chats/{chat}/queue/{index}", h.auth(h.handleQueueRemove))
	mux.HandleFunc("POST /v1/chats/{chat}/queue/move", h.auth(h.handleQueueMove))
	mux.HandleFunc("POST /v1/chats/{chat}/queue/shuffle", h.auth(h.bare(registry.CmdQueueShuffle, "Queue shuffled")))
	mux.HandleFunc("POST /v1/chats/{chat}/queue/clear", h.auth(h.bare(registry.CmdQueueClear, "Queue cleared")))

	mux.HandleFunc("GET /v1/events", h.auth(h.handleEvents))

	return mux
}

// auth checks the admin token. Accepts Authorization: Bearer or the
// X-Admin-Token header.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			token = r.Header.Get(adminTokenHeader)
		}
		if token != h.token {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:    "unauthenticated",
				Message: "invalid or missing admin token",
			})
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		UptimeSec:    int64(time.Since(h.started).Seconds()),
		Sessions:     h.registry.Count(),
		StoreBackend: h.backend,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	st, err := h.registry.Status(chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(st))
}

func (h *Handler) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	all := h.registry.StatusAll()
	resp := statusListResponse{Count: len(all), Chats: make([]statusDTO, 0, len(all))}
	for _, st := range all {
		resp.Chats = append(resp.Chats, toStatusDTO(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

// chatID parses the {chat} path segment.
func (h *Handler) chatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("chat"), 10, 64)
	if err != nil {
		writeBadRequest(w, "bad_chat_id", "chat id must be an integer")
		return 0, false
	}
	return id, true
}

// bare builds a handler for argument-less commands.
func (h *Handler) bare(kind registry.CommandKind, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := h.chatID(w, r)
		if !ok {
			return
		}
		if _, err := h.registry.Dispatch(r.Context(), chatID, registry.Command{Kind: kind}); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: message})
	}
}
