package sync

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal/gcaltest"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/memory"
)

const (
	srcCal = "alice@example.com"
	tgtCal = "mirror@example.com"
)

func TestMirrorInsertsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	api.AddEvent(srcCal, &gcal.Event{ID: "ev1", Status: "confirmed", Summary: "Standup"})

	synced, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)
	assert.True(t, synced)
	assert.Equal(t, 1, api.EventCount(tgtCal))

	// Running again updates the existing mirror instead of duplicating.
	synced, err = m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)
	assert.True(t, synced)
	assert.Equal(t, 1, api.EventCount(tgtCal))

	mapping, err := store.GetMapping(ctx, srcCal, "ev1")
	require.NoError(t, err)
	assert.NotEmpty(t, mapping.TargetEventID)
}

func TestMirrorEventShape(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	api.AddEvent(srcCal, &gcal.Event{
		ID:           "ev1",
		Status:       "confirmed",
		Summary:      "Standup",
		Description:  "daily",
		Transparency: "transparent",
	})

	_, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)

	mirrored := api.Events(tgtCal)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "[alice] Standup", mirrored[0].Summary)
	assert.Equal(t, "private", mirrored[0].Visibility)
	assert.Equal(t, "transparent", mirrored[0].Transparency)
	assert.Equal(t, "free", mirrored[0].Private["freeBusy"])
}

func TestMirrorOpaqueIsBusy(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	api.AddEvent(srcCal, &gcal.Event{ID: "ev1", Status: "confirmed", Summary: "1:1"})

	_, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)
	assert.Equal(t, "busy", api.Events(tgtCal)[0].Private["freeBusy"])
}

func TestMirrorCancelledDeletesMirror(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	api.AddEvent(srcCal, &gcal.Event{ID: "ev1", Status: "confirmed", Summary: "Standup"})
	_, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)
	require.Equal(t, 1, api.EventCount(tgtCal))

	api.AddEvent(srcCal, &gcal.Event{ID: "ev1", Status: gcal.StatusCancelled})

	synced, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)
	assert.False(t, synced, "deletions are not counted")
	assert.Equal(t, 0, api.EventCount(tgtCal))

	_, err = store.GetMapping(ctx, srcCal, "ev1")
	assert.Error(t, err)
}

func TestMirrorCancelledWithoutMappingIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	api.AddEvent(srcCal, &gcal.Event{ID: "ev1", Status: gcal.StatusCancelled})

	synced, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Equal(t, 0, api.EventCount(tgtCal))
}

func TestMirrorSourceGone(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	synced, err := m.Mirror(ctx, api, srcCal, "missing", tgtCal)
	require.NoError(t, err)
	assert.False(t, synced)
}

func TestMirrorInsertErrorPropagates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	m := NewMirrorer(store, zerolog.Nop())

	api.AddEvent(srcCal, &gcal.Event{ID: "ev1", Status: "confirmed", Summary: "Standup"})
	api.InsertHook = func(calendarID string, ev *gcal.Event) error { return gcal.ErrTransient }

	synced, err := m.Mirror(ctx, api, srcCal, "ev1", tgtCal)
	assert.Error(t, err)
	assert.False(t, synced)

	// No mapping must exist for a failed insert.
	_, err = store.GetMapping(ctx, srcCal, "ev1")
	assert.Error(t, err)
}
