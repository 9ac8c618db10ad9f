package watch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal/gcaltest"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/memory"
)

func newTestManager(store storage.Store, api *gcaltest.Fake) *Manager {
	return NewManager(store, &gcaltest.Factory{API: api},
		config.WatchConfig{ExpirationDays: 7, RenewalWindow: 24 * time.Hour},
		config.SyncConfig{WebhookURL: "https://mirror.example.com/webhook", BackfillHorizon: config.BackfillHorizon},
		zerolog.Nop())
}

func TestCreateChannel(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := newTestManager(store, api)

	ch, err := m.CreateChannel(ctx, "user1", "work@example.com", "mirror@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, "res-"+ch.ID, ch.ResourceID)
	assert.Equal(t, storage.StatusPending, ch.Sync.Status)
	assert.False(t, ch.Sync.TimeMax.IsZero())
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), ch.Expiration, time.Minute)

	stored, err := store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "work@example.com", stored.SourceCalendarID)
}

func TestCreateChannelWatchFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	api.WatchErr = assert.AnError
	m := newTestManager(store, api)

	_, err := m.CreateChannel(ctx, "user1", "work@example.com", "mirror@example.com")
	require.Error(t, err)

	channels, err := store.ListChannelsByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, channels, "no record without a provider watch")
}

func TestStopUserChannels(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := newTestManager(store, api)

	for _, cal := range []string{"a@example.com", "b@example.com"} {
		_, err := m.CreateChannel(ctx, "user1", cal, "mirror@example.com")
		require.NoError(t, err)
	}

	stopped, err := m.StopUserChannels(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, stopped)

	channels, err := store.ListChannelsByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestRenewExpiringCarriesSyncState(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := newTestManager(store, api)

	ch, err := m.CreateChannel(ctx, "user1", "work@example.com", "mirror@example.com")
	require.NoError(t, err)

	st := ch.Sync
	st.Status = storage.StatusComplete
	st.SyncToken = "sync-42"
	st.EventsSynced = 17
	require.NoError(t, store.UpdateSyncState(ctx, ch.ID, st))

	// Push the channel into the renewal window.
	expiring := *ch
	expiring.Sync = st
	expiring.Expiration = time.Now().Add(time.Hour)
	require.NoError(t, store.DeleteChannel(ctx, ch.ID))
	require.NoError(t, store.CreateChannel(ctx, &expiring))

	require.NoError(t, m.RenewExpiring(ctx))

	channels, err := store.ListChannelsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	renewed := channels[0]
	assert.NotEqual(t, ch.ID, renewed.ID)
	assert.Equal(t, "sync-42", renewed.Sync.SyncToken)
	assert.Equal(t, int64(17), renewed.Sync.EventsSynced)
	assert.Greater(t, renewed.Expiration.Unix(), time.Now().Add(6*24*time.Hour).Unix())
}

func TestRenewDeferredWhileBackfillRunning(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := newTestManager(store, api)

	ch, err := m.CreateChannel(ctx, "user1", "work@example.com", "mirror@example.com")
	require.NoError(t, err)

	expiring := *ch
	expiring.Expiration = time.Now().Add(time.Hour)
	require.NoError(t, store.DeleteChannel(ctx, ch.ID))
	require.NoError(t, store.CreateChannel(ctx, &expiring))

	coord := &storage.SyncCoordination{
		UserID:     "user1",
		ChannelIDs: []string{ch.ID},
		Status:     storage.CoordinationRunning,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.PutCoordination(ctx, coord))

	// Mid-backfill the coordination tracks the channel by ID, so the
	// sweep must not swap it out from under the running census.
	require.NoError(t, m.RenewExpiring(ctx))
	got, err := store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, got.ID)

	coord.Status = storage.CoordinationComplete
	require.NoError(t, store.PutCoordination(ctx, coord))

	require.NoError(t, m.RenewExpiring(ctx))
	channels, err := store.ListChannelsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.NotEqual(t, ch.ID, channels[0].ID)
}

func TestRenewLeavesDistantChannels(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := newTestManager(store, api)

	ch, err := m.CreateChannel(ctx, "user1", "work@example.com", "mirror@example.com")
	require.NoError(t, err)

	require.NoError(t, m.RenewExpiring(ctx))

	got, err := store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, got.ID, "a fresh watch is not renewed")
}
