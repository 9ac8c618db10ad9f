package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/api"
	"github.com/sonroyaalmerol/gcal-mirror/internal/auth"
	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/queue/redisqueue"
	"github.com/sonroyaalmerol/gcal-mirror/internal/router"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/memory"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/postgres"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage/sqlite"
	"github.com/sonroyaalmerol/gcal-mirror/internal/sync"
	"github.com/sonroyaalmerol/gcal-mirror/internal/watch"
)

type Server struct {
	http    *http.Server
	worker  *redisqueue.Worker
	renewer *watch.Renewer
	logger  zerolog.Logger

	workerCancel context.CancelFunc
	workerDone   chan struct{}
}

func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	// init storage
	var store storage.Store
	var err error

	switch cfg.Storage.Type {
	case "postgres":
		store, err = postgres.New(cfg.Storage.PostgresURL, logger)
	case "sqlite":
		store, err = sqlite.New(cfg.Storage.SQLitePath, logger)
	case "memory":
		store = memory.New()
	default:
		err = errors.New("unknown storage type: " + cfg.Storage.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		store.Close()
		return nil, nil, err
	}
	taskQueue := redisqueue.New(rdb, logger)

	factory := gcal.NewFactory(cfg.Google, store, logger)
	batch := sync.NewBatchProcessor(store, factory, cfg.Sync, logger)
	coord := sync.NewCoordinator(store, batch, taskQueue, cfg.Sync, logger)
	watchMgr := watch.NewManager(store, factory, cfg.Watch, cfg.Sync, logger)

	renewer, err := watch.NewRenewer(watchMgr, cfg.Watch.CronSpec, logger)
	if err != nil {
		store.Close()
		rdb.Close()
		return nil, nil, err
	}

	handlers := api.NewHandlers(store, watchMgr, batch, coord, taskQueue, cfg.Sync, logger)
	verifier := auth.NewVerifier(cfg.Auth, logger)
	mux := router.New(handlers, verifier, logger)

	worker := redisqueue.NewWorker(rdb, handlers.DispatchTask, cfg.Redis.PollInterval, logger)

	srv := &Server{
		http: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		worker:  worker,
		renewer: renewer,
		logger:  logger,
	}
	cleanup := func() {
		store.Close()
		rdb.Close()
	}
	logger.Info().Msgf("listening on %s (storage=%s)", cfg.HTTP.Addr, cfg.Storage.Type)
	return srv, cleanup, nil
}

func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	s.workerDone = make(chan struct{})
	go func() {
		defer close(s.workerDone)
		s.worker.Run(ctx)
	}()
	s.renewer.Start()
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.workerCancel != nil {
		s.workerCancel()
	}
	s.renewer.Stop()
	err := s.http.Shutdown(ctx)
	if s.workerDone != nil {
		select {
		case <-s.workerDone:
		case <-ctx.Done():
		}
	}
	return err
}
