package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sonroyaalmerol/gcal-mirror/internal/queue"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// DispatchTask executes one queued task. It serves both the in-process
// queue worker and the HTTP task callback so either delivery path runs
// identical logic.
func (h *Handlers) DispatchTask(ctx context.Context, t queue.Task) error {
	switch t.Kind {
	case queue.KindCoordinate:
		return h.coord.Advance(ctx, t.UserID)
	case queue.KindChannelBatch:
		res, err := h.batch.Process(ctx, t.ChannelID)
		if err != nil {
			return err
		}
		if !res.HasMore {
			return nil
		}
		ch, err := h.store.GetChannel(ctx, t.ChannelID)
		if err != nil {
			return err
		}
		return h.queue.Enqueue(ctx, queue.ChannelBatchTask(t.ChannelID, ch.Sync.PageToken, time.Now().Add(h.cfg.ContinueDelay)))
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

// HandleTask is the HTTP task callback for externally driven
// deliveries.
func (h *Handlers) HandleTask(w http.ResponseWriter, r *http.Request) {
	var t queue.Task
	if err := decodeBody(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "malformed task payload")
		return
	}
	if err := h.DispatchTask(r.Context(), t); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Gone records are not worth a redelivery.
			h.logger.Warn().Str("task", t.Name).Msg("task target no longer exists")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error().Err(err).Str("task", t.Name).Msg("task execution failed")
		writeError(w, http.StatusInternalServerError, "task failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}
