package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

type mirrorPair struct {
	SourceCalendarID string `json:"sourceCalendarId"`
	TargetCalendarID string `json:"targetCalendarId"`
}

type setupRequest struct {
	UserID string       `json:"userId"`
	Pairs  []mirrorPair `json:"pairs"`
}

// HandleSetup registers watch channels for each mirror pair and starts
// coordinated backfill across them.
func (h *Handlers) HandleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.UserID == "" || len(req.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, "userId and pairs are required")
		return
	}
	for _, p := range req.Pairs {
		if p.SourceCalendarID == "" || p.TargetCalendarID == "" {
			writeError(w, http.StatusBadRequest, "each pair needs source and target calendar ids")
			return
		}
	}

	channelIDs := make([]string, 0, len(req.Pairs))
	for _, p := range req.Pairs {
		ch, err := h.watch.CreateChannel(r.Context(), req.UserID, p.SourceCalendarID, p.TargetCalendarID)
		if err != nil {
			h.logger.Error().Err(err).
				Str("user", req.UserID).
				Str("source_calendar", p.SourceCalendarID).
				Msg("channel setup failed")
			writeError(w, http.StatusBadGateway, "failed to create watch channel")
			return
		}
		channelIDs = append(channelIDs, ch.ID)
	}

	if err := h.coord.Start(r.Context(), req.UserID, channelIDs); err != nil {
		h.logger.Error().Err(err).Str("user", req.UserID).Msg("coordination start failed")
		writeError(w, http.StatusInternalServerError, "failed to start sync")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":     req.UserID,
		"channelIds": channelIDs,
	})
}

type userRequest struct {
	UserID string `json:"userId"`
}

func (h *Handlers) userFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req userRequest
	if err := decodeBody(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	return req.UserID, true
}

func (h *Handlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromBody(w, r)
	if !ok {
		return
	}
	n, err := h.store.SetChannelsPaused(r.Context(), userID, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to pause channels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": n})
}

func (h *Handlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromBody(w, r)
	if !ok {
		return
	}
	n, err := h.store.SetChannelsPaused(r.Context(), userID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resume channels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resumed": n})
}

func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromBody(w, r)
	if !ok {
		return
	}
	stopped, err := h.watch.StopUserChannels(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop channels")
		return
	}
	if err := h.store.DeleteCoordination(r.Context(), userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to clear coordination")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// HandleRestart resets every channel of the user back to a pending full
// scan and starts a fresh coordination run. Event mappings survive, so
// the re-scan updates mirrors in place instead of duplicating them.
func (h *Handlers) HandleRestart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromBody(w, r)
	if !ok {
		return
	}
	channels, err := h.store.ListChannelsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	if len(channels) == 0 {
		writeError(w, http.StatusNotFound, "no channels for user")
		return
	}

	now := time.Now().UTC()
	channelIDs := make([]string, 0, len(channels))
	for _, ch := range channels {
		st := storage.SyncState{
			Status:  storage.StatusPending,
			TimeMax: now.Add(h.cfg.BackfillHorizon),
		}
		if err := h.store.UpdateSyncState(r.Context(), ch.ID, st); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to reset channel state")
			return
		}
		channelIDs = append(channelIDs, ch.ID)
	}

	if err := h.coord.Start(r.Context(), userID, channelIDs); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start sync")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restarted": len(channelIDs)})
}

type channelStatus struct {
	ChannelID        string    `json:"channelId"`
	SourceCalendarID string    `json:"sourceCalendarId"`
	TargetCalendarID string    `json:"targetCalendarId"`
	Paused           bool      `json:"paused"`
	Status           string    `json:"status"`
	EventsSynced     int64     `json:"eventsSynced"`
	FailedEvents     int       `json:"failedEvents"`
	RetryCount       int       `json:"retryCount"`
	LastError        string    `json:"lastError,omitempty"`
	LastBatchTime    time.Time `json:"lastBatchTime"`
	Expiration       time.Time `json:"expiration"`
}

type coordinationStatus struct {
	Status          string    `json:"status"`
	CurrentIndex    int       `json:"currentIndex"`
	IterationCount  int       `json:"iterationCount"`
	CreatedAt       time.Time `json:"createdAt"`
	LastIterationAt time.Time `json:"lastIterationAt"`
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	channels, err := h.store.ListChannelsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	out := map[string]any{"userId": userID}
	chans := make([]channelStatus, 0, len(channels))
	for _, ch := range channels {
		chans = append(chans, channelStatus{
			ChannelID:        ch.ID,
			SourceCalendarID: ch.SourceCalendarID,
			TargetCalendarID: ch.TargetCalendarID,
			Paused:           ch.Paused,
			Status:           string(ch.Sync.Status),
			EventsSynced:     ch.Sync.EventsSynced,
			FailedEvents:     len(ch.Sync.FailedEvents),
			RetryCount:       ch.Sync.RetryCount,
			LastError:        ch.Sync.LastError,
			LastBatchTime:    ch.Sync.LastBatchTime,
			Expiration:       ch.Expiration,
		})
	}
	out["channels"] = chans

	coord, err := h.store.GetCoordination(r.Context(), userID)
	if err == nil {
		out["coordination"] = coordinationStatus{
			Status:          string(coord.Status),
			CurrentIndex:    coord.CurrentIndex,
			IterationCount:  coord.IterationCount,
			CreatedAt:       coord.CreatedAt,
			LastIterationAt: coord.LastIterationAt,
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to load coordination")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleClear tears down the user's watches, coordination and event
// mappings. Mirror events already created stay in the target calendars.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	channels, err := h.store.ListChannelsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	mappings := 0
	for _, ch := range channels {
		n, err := h.store.DeleteMappingsByCalendar(r.Context(), ch.SourceCalendarID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to delete mappings")
			return
		}
		mappings += n
	}
	stopped, err := h.watch.StopUserChannels(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop channels")
		return
	}
	if err := h.store.DeleteCoordination(r.Context(), userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to clear coordination")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped":  stopped,
		"mappings": mappings,
	})
}
