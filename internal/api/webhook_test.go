package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
)

func webhookRequest(channelID, state string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	if channelID != "" {
		req.Header.Set("X-Goog-Channel-ID", channelID)
	}
	if state != "" {
		req.Header.Set("X-Goog-Resource-State", state)
	}
	return req
}

func TestWebhookMissingChannelID(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.handlers.HandleWebhook(rec, webhookRequest("", "exists"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandshake(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.handlers.HandleWebhook(rec, webhookRequest("ch1", "sync"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.api.Calls, "handshake triggers no provider traffic")
}

func TestWebhookUnknownChannelStillAcks(t *testing.T) {
	// A non-2xx would make the provider hammer the endpoint with
	// redeliveries for a subscription that no longer exists.
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.handlers.HandleWebhook(rec, webhookRequest("ghost", "exists"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookExistsRunsIncrementalSync(t *testing.T) {
	e := newTestEnv(t)
	seedSyncedChannel(t, e, "ch1", "user1", "work@example.com", "mirror@example.com", "sync-1")
	e.api.AddEvent("work@example.com", &gcal.Event{ID: "ev1", Status: "confirmed", Summary: "Review"})
	e.api.SyncPages = []*gcal.Page{{
		Events:        []*gcal.Event{{ID: "ev1"}},
		NextSyncToken: "sync-2",
	}}

	rec := httptest.NewRecorder()
	e.handlers.HandleWebhook(rec, webhookRequest("ch1", "exists"))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, e.api.EventCount("mirror@example.com"))
	ch, err := e.store.GetChannel(context.Background(), "ch1")
	require.NoError(t, err)
	assert.Equal(t, "sync-2", ch.Sync.SyncToken)
}

func TestWebhookIgnoresOtherStates(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.handlers.HandleWebhook(rec, webhookRequest("ch1", "not_exists"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.api.Calls)
}
