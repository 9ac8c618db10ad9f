package api

import (
	"errors"
	"net/http"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// HandleWebhook receives provider push notifications. The provider
// expects a prompt 2xx regardless of internal outcome; anything else
// triggers redelivery storms, so failures are logged and swallowed.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-ID")
	state := r.Header.Get("X-Goog-Resource-State")

	if channelID == "" {
		writeError(w, http.StatusBadRequest, "missing channel id")
		return
	}

	switch state {
	case "sync":
		// Registration handshake, nothing to do yet.
		h.logger.Debug().Str("channel", channelID).Msg("watch handshake received")
		w.WriteHeader(http.StatusOK)
	case "exists":
		if err := h.batch.ProcessIncremental(r.Context(), channelID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.logger.Warn().Str("channel", channelID).Msg("notification for unknown channel")
			} else {
				h.logger.Error().Err(err).Str("channel", channelID).Msg("incremental sync failed")
			}
		}
		w.WriteHeader(http.StatusOK)
	default:
		h.logger.Debug().
			Str("channel", channelID).
			Str("state", state).
			Msg("ignoring notification state")
		w.WriteHeader(http.StatusOK)
	}
}
