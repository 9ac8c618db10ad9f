package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/queue"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
	"github.com/sonroyaalmerol/gcal-mirror/internal/sync"
	"github.com/sonroyaalmerol/gcal-mirror/internal/watch"
)

// Handlers carries the application endpoints: the provider webhook,
// the task callback, and the per-user sync control surface.
type Handlers struct {
	store  storage.Store
	watch  *watch.Manager
	batch  *sync.BatchProcessor
	coord  *sync.Coordinator
	queue  queue.Queue
	cfg    config.SyncConfig
	logger zerolog.Logger
}

func NewHandlers(store storage.Store, watchMgr *watch.Manager, batch *sync.BatchProcessor, coord *sync.Coordinator, q queue.Queue, cfg config.SyncConfig, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		watch:  watchMgr,
		batch:  batch,
		coord:  coord,
		queue:  q,
		cfg:    cfg,
		logger: logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
