package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal/gcaltest"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/memory"
)

func newTestCoordinator(store storage.Store, api gcal.API, q *recordQueue) *Coordinator {
	batch := newTestProcessor(store, api)
	return NewCoordinator(store, batch, q, testCfg(), zerolog.Nop())
}

// pump drives queued coordinate tasks until the queue drains, returning
// the error of the last step.
func pump(t *testing.T, c *Coordinator, q *recordQueue) error {
	t.Helper()
	var last error
	for i := 0; i < 100; i++ {
		task, ok := q.pop()
		if !ok {
			return last
		}
		last = c.Advance(context.Background(), task.UserID)
	}
	t.Fatal("coordination did not settle within 100 steps")
	return nil
}

func listCalls(api *gcaltest.Fake) []string {
	var out []string
	for _, call := range api.Calls {
		if strings.HasPrefix(call, "list:") {
			out = append(out, strings.TrimPrefix(call, "list:"))
		}
	}
	return out
}

func TestCoordinatorRoundRobin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	q := newRecordQueue()

	calA, calB, calC := "a@example.com", "b@example.com", "c@example.com"
	seedEvents(api, calA, 120)
	seedEvents(api, calB, 60)
	seedEvents(api, calC, 10)
	seedChannel(t, store, "chA", "user1", calA, tgtCal)
	seedChannel(t, store, "chB", "user1", calB, tgtCal)
	seedChannel(t, store, "chC", "user1", calC, tgtCal)

	c := newTestCoordinator(store, api, q)
	require.NoError(t, c.Start(ctx, "user1", []string{"chA", "chB", "chC"}))
	require.NoError(t, pump(t, c, q))

	for _, id := range []string{"chA", "chB", "chC"} {
		assert.Equal(t, storage.StatusComplete, mustGetChannel(t, store, id).Sync.Status)
	}
	assert.Equal(t, 190, api.EventCount(tgtCal))

	coord, err := store.GetCoordination(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, storage.CoordinationComplete, coord.Status)

	// One page per turn, channels visited in order before any repeats.
	lists := listCalls(api)
	require.GreaterOrEqual(t, len(lists), 3)
	assert.Equal(t, []string{calA, calB, calC}, lists[:3])
	counts := map[string]int{}
	for _, cal := range lists {
		counts[cal]++
	}
	assert.Equal(t, 3, counts[calA])
	assert.Equal(t, 2, counts[calB])
	assert.Equal(t, 1, counts[calC])
}

func TestCoordinatorAllChannelsFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	q := newRecordQueue()

	// Channels without a target calendar can never make progress.
	seedChannel(t, store, "ch1", "user1", srcCal, "")
	seedChannel(t, store, "ch2", "user1", "other@example.com", "")

	c := newTestCoordinator(store, api, q)
	require.NoError(t, c.Start(ctx, "user1", []string{"ch1", "ch2"}))
	err := pump(t, c, q)
	assert.ErrorIs(t, err, ErrAllChannelsFailed)

	coord, gerr := store.GetCoordination(ctx, "user1")
	require.NoError(t, gerr)
	assert.Equal(t, storage.CoordinationFailed, coord.Status)
}

func TestCoordinatorPartialFailureCompletes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	q := newRecordQueue()

	seedEvents(api, srcCal, 5)
	seedChannel(t, store, "good", "user1", srcCal, tgtCal)
	seedChannel(t, store, "bad", "user1", "other@example.com", "")

	c := newTestCoordinator(store, api, q)
	require.NoError(t, c.Start(ctx, "user1", []string{"good", "bad"}))
	require.NoError(t, pump(t, c, q))

	coord, err := store.GetCoordination(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, storage.CoordinationComplete, coord.Status)
	assert.Equal(t, storage.StatusComplete, mustGetChannel(t, store, "good").Sync.Status)
	assert.Equal(t, storage.StatusFailed, mustGetChannel(t, store, "bad").Sync.Status)
}

func TestCoordinatorIterationCap(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := newRecordQueue()
	c := newTestCoordinator(store, gcaltest.NewFake(), q)

	require.NoError(t, store.PutCoordination(ctx, &storage.SyncCoordination{
		UserID:         "user1",
		ChannelIDs:     []string{"ch1"},
		IterationCount: testCfg().MaxIterations,
		Status:         storage.CoordinationRunning,
		CreatedAt:      time.Now(),
	}))

	err := c.Advance(ctx, "user1")
	assert.ErrorIs(t, err, ErrCoordinationRunaway)
	coord, gerr := store.GetCoordination(ctx, "user1")
	require.NoError(t, gerr)
	assert.Equal(t, storage.CoordinationFailed, coord.Status)
	assert.Empty(t, q.tasks, "runaway never reschedules")
}

func TestCoordinatorAgeCap(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := newRecordQueue()
	c := newTestCoordinator(store, gcaltest.NewFake(), q)

	require.NoError(t, store.PutCoordination(ctx, &storage.SyncCoordination{
		UserID:     "user1",
		ChannelIDs: []string{"ch1"},
		Status:     storage.CoordinationRunning,
		CreatedAt:  time.Now().Add(-2 * time.Hour),
	}))

	assert.ErrorIs(t, c.Advance(ctx, "user1"), ErrCoordinationRunaway)
}

func TestCoordinatorSettledStepIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := newRecordQueue()
	c := newTestCoordinator(store, gcaltest.NewFake(), q)

	require.NoError(t, store.PutCoordination(ctx, &storage.SyncCoordination{
		UserID:     "user1",
		ChannelIDs: []string{"ch1"},
		Status:     storage.CoordinationComplete,
		CreatedAt:  time.Now(),
	}))

	require.NoError(t, c.Advance(ctx, "user1"))
	assert.Empty(t, q.tasks)
}

func TestCoordinatorMissingRecordIsNoop(t *testing.T) {
	store := memory.New()
	q := newRecordQueue()
	c := newTestCoordinator(store, gcaltest.NewFake(), q)
	require.NoError(t, c.Advance(context.Background(), "ghost"))
}

func TestCoordinatorVanishedChannelStillSettles(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	api := gcaltest.NewFake()
	q := newRecordQueue()

	seedEvents(api, srcCal, 5)
	seedChannel(t, store, "alive", "user1", srcCal, tgtCal)

	c := newTestCoordinator(store, api, q)
	require.NoError(t, c.Start(ctx, "user1", []string{"gone", "alive"}))
	require.NoError(t, pump(t, c, q))

	coord, err := store.GetCoordination(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, storage.CoordinationComplete, coord.Status)
	assert.Equal(t, storage.StatusComplete, mustGetChannel(t, store, "alive").Sync.Status)
}

func TestCoordinatorStartEnqueuesFirstStep(t *testing.T) {
	store := memory.New()
	q := newRecordQueue()
	c := newTestCoordinator(store, gcaltest.NewFake(), q)

	require.NoError(t, c.Start(context.Background(), "user1", []string{"ch1"}))
	require.Len(t, q.tasks, 1)
	assert.True(t, strings.HasPrefix(q.tasks[0].Name, "coordinate:user1:"))
	assert.True(t, strings.HasSuffix(q.tasks[0].Name, ":0"))
	assert.Equal(t, "user1", q.tasks[0].UserID)
}
