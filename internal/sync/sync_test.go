package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal/gcaltest"
	"github.com/sonroyaalmerol/gcal-mirror/internal/queue"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

func testCfg() config.SyncConfig {
	return config.SyncConfig{
		PageSize:           config.PageSize,
		CallDelay:          0,
		MaxRetries:         config.MaxRetries,
		BackfillHorizon:    config.BackfillHorizon,
		MaxIterations:      config.MaxIterations,
		MaxCoordinationAge: config.MaxCoordinationAge,
		ContinueDelay:      0,
	}
}

func newTestProcessor(store storage.Store, api gcal.API) *BatchProcessor {
	p := NewBatchProcessor(store, &gcaltest.Factory{API: api}, testCfg(), zerolog.Nop())
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func seedChannel(t *testing.T, store storage.Store, id, userID, source, target string) *storage.Channel {
	t.Helper()
	ch := &storage.Channel{
		ID:               id,
		UserID:           userID,
		SourceCalendarID: source,
		TargetCalendarID: target,
		Expiration:       time.Now().Add(7 * 24 * time.Hour),
		Sync: storage.SyncState{
			Status:  storage.StatusPending,
			TimeMax: time.Now().Add(config.BackfillHorizon),
		},
	}
	require.NoError(t, store.CreateChannel(context.Background(), ch))
	return ch
}

func seedEvents(api *gcaltest.Fake, calendarID string, n int) {
	for i := 0; i < n; i++ {
		api.AddEvent(calendarID, &gcal.Event{
			ID:      fmt.Sprintf("%s-ev-%03d", calendarID, i),
			Status:  "confirmed",
			Summary: fmt.Sprintf("event %d", i),
		})
	}
}

// recordQueue captures enqueued tasks and mimics the name-based dedupe
// of the real queue. Tests pump it FIFO.
type recordQueue struct {
	tasks []queue.Task
	seen  map[string]bool
}

func newRecordQueue() *recordQueue {
	return &recordQueue{seen: make(map[string]bool)}
}

func (q *recordQueue) Enqueue(ctx context.Context, t queue.Task) error {
	if q.seen[t.Name] {
		return nil
	}
	q.seen[t.Name] = true
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordQueue) pop() (queue.Task, bool) {
	if len(q.tasks) == 0 {
		return queue.Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func mustGetChannel(t *testing.T, store storage.Store, id string) *storage.Channel {
	t.Helper()
	ch, err := store.GetChannel(context.Background(), id)
	require.NoError(t, err)
	return ch
}
