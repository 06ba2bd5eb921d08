package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/osa030/callbox/internal/app/registry"
)

func (h *Handler) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "bad_body", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeBadRequest(w, "missing_query", "query is required")
		return
	}

	cmd := registry.Command{
		Kind:      registry.CmdQueueAdd,
		Query:     req.Query,
		Requester: apiRequester(req.Requester),
	}
	res, err := h.registry.Dispatch(r.Context(), chatID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{
		Success:  true,
		Message:  "Track queued",
		Track:    toTrackDTO(res.Track),
		Enqueued: true,
		Position: res.Position,
	})
}

func (h *Handler) handleQueuePage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "bad_page", "page must be a positive integer")
			return
		}
		page = n
	}

	entries, totalPages, err := h.registry.QueuePage(r.Context(), chatID, page, h.pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	// Out-of-range pages are clamped to the last page; report the page
	// actually served.
	effective := page
	if totalPages == 0 {
		effective = 1
	} else if effective > totalPages {
		effective = totalPages
	}
	writeJSON(w, http.StatusOK, toQueuePageDTO(chatID, effective, h.pageSize, totalPages, entries))
}

func (h *Handler) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeBadRequest(w, "out_of_range", "index must be a non-negative integer")
		return
	}

	cmd := registry.Command{Kind: registry.CmdQueueRemove, Index: index}
	res, err := h.registry.Dispatch(r.Context(), chatID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: "Track removed from queue",
		Track:   toTrackDTO(res.Track),
	})
}

func (h *Handler) handleQueueMove(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "bad_body", "invalid JSON body")
		return
	}
	if req.From < 0 || req.To < 0 {
		writeBadRequest(w, "out_of_range", "from and to must be non-negative")
		return
	}

	cmd := registry.Command{Kind: registry.CmdQueueMove, From: req.From, To: req.To}
	if _, err := h.registry.Dispatch(r.Context(), chatID, cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "Track moved"})
}
