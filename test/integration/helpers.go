package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/api"
	"github.com/sonroyaalmerol/gcal-mirror/internal/auth"
	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal/gcaltest"
	"github.com/sonroyaalmerol/gcal-mirror/internal/queue"
	"github.com/sonroyaalmerol/gcal-mirror/internal/router"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/memory"
	"github.com/sonroyaalmerol/gcal-mirror/internal/sync"
	"github.com/sonroyaalmerol/gcal-mirror/internal/watch"
)

// env is a full application stack over in-memory storage and a fake
// provider, served through a real HTTP listener. Tasks are captured and
// pumped synchronously so tests control time.
type env struct {
	server   *httptest.Server
	store    storage.Store
	api      *gcaltest.Fake
	handlers *api.Handlers
	tasks    *taskRecorder
}

type taskRecorder struct {
	tasks []queue.Task
	seen  map[string]bool
}

func (q *taskRecorder) Enqueue(ctx context.Context, t queue.Task) error {
	if q.seen[t.Name] {
		return nil
	}
	q.seen[t.Name] = true
	q.tasks = append(q.tasks, t)
	return nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	fake := gcaltest.NewFake()
	factory := &gcaltest.Factory{API: fake}
	logger := zerolog.Nop()

	syncCfg := config.SyncConfig{
		WebhookURL:         "https://mirror.example.com/webhook",
		PageSize:           config.PageSize,
		CallDelay:          0,
		MaxRetries:         config.MaxRetries,
		BackfillHorizon:    config.BackfillHorizon,
		MaxIterations:      config.MaxIterations,
		MaxCoordinationAge: config.MaxCoordinationAge,
		ContinueDelay:      0,
	}
	watchCfg := config.WatchConfig{ExpirationDays: 7, RenewalWindow: 24 * time.Hour}

	tasks := &taskRecorder{seen: make(map[string]bool)}
	batch := sync.NewBatchProcessor(store, factory, syncCfg, logger)
	coord := sync.NewCoordinator(store, batch, tasks, syncCfg, logger)
	watchMgr := watch.NewManager(store, factory, watchCfg, syncCfg, logger)
	handlers := api.NewHandlers(store, watchMgr, batch, coord, tasks, syncCfg, logger)
	verifier := auth.NewVerifier(config.AuthConfig{}, logger)

	return &env{
		server:   httptest.NewServer(router.New(handlers, verifier, logger)),
		store:    store,
		api:      fake,
		handlers: handlers,
		tasks:    tasks,
	}
}

func (e *env) Close() {
	e.server.Close()
}

// drainTasks executes captured tasks FIFO until none remain.
func (e *env) drainTasks(t *testing.T) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if len(e.tasks.tasks) == 0 {
			return
		}
		task := e.tasks.tasks[0]
		e.tasks.tasks = e.tasks.tasks[1:]
		if err := e.handlers.DispatchTask(context.Background(), task); err != nil {
			t.Logf("task %s: %v", task.Name, err)
		}
	}
	t.Fatal("task queue did not drain")
}
