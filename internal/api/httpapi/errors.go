package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/admission"
	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/app/queue"
)

// classify maps a dispatch error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrNoSession):
		return http.StatusNotFound, "no_session"
	case errors.Is(err, registry.ErrShutdown):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, admission.ErrDenied):
		return http.StatusUnprocessableEntity, string(playback.ErrorKindAdmissionDenied)
	case errors.Is(err, playback.ErrSourceUnavailable):
		return http.StatusBadGateway, string(playback.ErrorKindSourceUnavailable)
	case errors.Is(err, playback.ErrAttachFailed):
		return http.StatusBadGateway, string(playback.ErrorKindAttachFailed)
	case errors.Is(err, playback.ErrSeekOutOfRange):
		return http.StatusBadRequest, string(playback.ErrorKindOutOfRange)
	case errors.Is(err, queue.ErrOutOfRange):
		return http.StatusBadRequest, string(playback.ErrorKindOutOfRange)
	case errors.Is(err, playback.ErrNoTrack):
		return http.StatusConflict, "no_track"
	case errors.Is(err, playback.ErrNotIdle):
		return http.StatusConflict, "not_idle"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		zlog.Error().Msgf("httpapi: internal error: err=%v", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("httpapi: response encode failed: err=%v", err)
	}
}
