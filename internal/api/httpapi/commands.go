package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/domain/track"
)

// decodeBody decodes a JSON request body into v. An empty body is fine,
// the caller validates required fields.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

// apiRequester builds the requester recorded for tracks submitted over
// the API. Requests act on behalf of chat participants, so they get the
// user type and admission rules apply to them.
func apiRequester(name string) track.Requester {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "api"
	}
	return track.Requester{Name: name, Type: track.RequesterTypeUser}
}

func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
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
	if req.SeekSec < 0 {
		writeBadRequest(w, "out_of_range", "seek_sec must not be negative")
		return
	}

	cmd := registry.Command{
		Kind:      registry.CmdPlay,
		Query:     req.Query,
		Seek:      time.Duration(req.SeekSec * float64(time.Second)),
		Requester: apiRequester(req.Requester),
	}
	res, err := h.registry.Dispatch(r.Context(), chatID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := commandResponse{Success: true, Track: toTrackDTO(res.Track)}
	if res.Enqueued {
		resp.Message = "Track queued"
		resp.Enqueued = true
		resp.Position = res.Position
	} else {
		resp.Message = "Playback started"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var req skipRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "bad_body", "invalid JSON body")
		return
	}

	cmd := registry.Command{Kind: registry.CmdSkip}
	if req.To != nil {
		cmd = registry.Command{Kind: registry.CmdSkipTo, Index: *req.To}
	}
	res, err := h.registry.Dispatch(r.Context(), chatID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{
		Success: true,
		Message: "Track skipped",
		Track:   toTrackDTO(res.Track),
	})
}

func (h *Handler) handleSeek(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "bad_body", "invalid JSON body")
		return
	}

	cmd := registry.Command{
		Kind: registry.CmdSeek,
		Seek: time.Duration(req.PositionSec * float64(time.Second)),
	}
	if _, err := h.registry.Dispatch(r.Context(), chatID, cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "Position changed"})
}

func (h *Handler) handleLoop(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var req loopRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "bad_body", "invalid JSON body")
		return
	}
	mode, ok := playback.ParseLoopMode(req.Mode)
	if !ok {
		writeBadRequest(w, "bad_loop_mode", "mode must be one of: off, track")
		return
	}

	cmd := registry.Command{Kind: registry.CmdSetLoop, Loop: mode}
	if _, err := h.registry.Dispatch(r.Context(), chatID, cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "Loop mode set to " + mode.String()})
}
