package api

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
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/memory"
	"github.com/sonroyaalmerol/gcal-mirror/internal/sync"
	"github.com/sonroyaalmerol/gcal-mirror/internal/watch"
)

func testSyncCfg() config.SyncConfig {
	return config.SyncConfig{
		WebhookURL:         "https://mirror.example.com/webhook",
		PageSize:           config.PageSize,
		CallDelay:          0,
		MaxRetries:         config.MaxRetries,
		BackfillHorizon:    config.BackfillHorizon,
		MaxIterations:      config.MaxIterations,
		MaxCoordinationAge: config.MaxCoordinationAge,
		ContinueDelay:      0,
	}
}

// capQueue records enqueued tasks with the real queue's name dedupe.
type capQueue struct {
	tasks []queue.Task
	seen  map[string]bool
}

func newCapQueue() *capQueue {
	return &capQueue{seen: make(map[string]bool)}
}

func (q *capQueue) Enqueue(ctx context.Context, t queue.Task) error {
	if q.seen[t.Name] {
		return nil
	}
	q.seen[t.Name] = true
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *capQueue) pop() (queue.Task, bool) {
	if len(q.tasks) == 0 {
		return queue.Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

type testEnv struct {
	handlers *Handlers
	store    storage.Store
	api      *gcaltest.Fake
	queue    *capQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	api := gcaltest.NewFake()
	factory := &gcaltest.Factory{API: api}
	cfg := testSyncCfg()
	logger := zerolog.Nop()

	q := newCapQueue()
	batch := sync.NewBatchProcessor(store, factory, cfg, logger)
	coord := sync.NewCoordinator(store, batch, q, cfg, logger)
	watchCfg := config.WatchConfig{ExpirationDays: 7, RenewalWindow: 24 * time.Hour, CronSpec: "0 3 * * *"}
	watchMgr := watch.NewManager(store, factory, watchCfg, cfg, logger)
	h := NewHandlers(store, watchMgr, batch, coord, q, cfg, logger)

	return &testEnv{handlers: h, store: store, api: api, queue: q}
}

// drain pumps queued tasks through the dispatcher until none remain.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		task, ok := e.queue.pop()
		if !ok {
			return
		}
		if err := e.handlers.DispatchTask(context.Background(), task); err != nil {
			t.Logf("task %s: %v", task.Name, err)
		}
	}
	t.Fatal("task queue did not drain")
}

func seedSyncedChannel(t *testing.T, e *testEnv, id, userID, source, target, syncToken string) {
	t.Helper()
	require.NoError(t, e.store.CreateChannel(context.Background(), &storage.Channel{
		ID:               id,
		UserID:           userID,
		SourceCalendarID: source,
		TargetCalendarID: target,
		Expiration:       time.Now().Add(7 * 24 * time.Hour),
		Sync: storage.SyncState{
			Status:    storage.StatusComplete,
			SyncToken: syncToken,
			TimeMax:   time.Now().Add(config.BackfillHorizon),
		},
	}))
}

func addSourceEvents(e *testEnv, calendarID string, n int) {
	for i := 0; i < n; i++ {
		e.api.AddEvent(calendarID, &gcal.Event{
			ID:      fmt.Sprintf("%s-ev-%d", calendarID, i),
			Status:  "confirmed",
			Summary: "event",
		})
	}
}
