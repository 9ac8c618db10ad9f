package redisqueue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/queue"
)

const (
	tasksKey     = "gcalmirror:tasks"
	dedupePrefix = "gcalmirror:task:"
	dedupeTTL    = 24 * time.Hour

	maxDeliveries  = 3
	redeliverDelay = 10 * time.Second
)

// Queue schedules tasks in a Redis sorted set keyed by due time, with a
// per-name SETNX guard so duplicate enqueues of the same logical step
// collapse to one scheduled execution.
type Queue struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func New(rdb *redis.Client, logger zerolog.Logger) *Queue {
	return &Queue{rdb: rdb, logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, t queue.Task) error {
	ok, err := q.rdb.SetNX(ctx, dedupePrefix+t.Name, 1, dedupeTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		// Already scheduled under this name; dedupe is success.
		q.logger.Debug().Str("task", t.Name).Msg("task already scheduled")
		return nil
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, tasksKey, &redis.Z{
		Score:  float64(t.RunAt.UnixMilli()),
		Member: payload,
	}).Err()
}

// Worker polls the sorted set for due tasks and hands each claimed one
// to the handler in its own goroutine. A claim is a ZREM: exactly one
// of any number of competing workers removes the member and runs it.
type Worker struct {
	rdb      *redis.Client
	handler  queue.Handler
	interval time.Duration
	logger   zerolog.Logger
}

func NewWorker(rdb *redis.Client, handler queue.Handler, interval time.Duration, logger zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{rdb: rdb, handler: handler, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, then waits for in-flight handlers.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			w.drainDue(ctx, &wg)
		}
	}
}

func (w *Worker) drainDue(ctx context.Context, wg *sync.WaitGroup) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := w.rdb.ZRangeByScore(ctx, tasksKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 32,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("task poll failed")
		}
		return
	}
	for _, member := range members {
		removed, err := w.rdb.ZRem(ctx, tasksKey, member).Result()
		if err != nil || removed == 0 {
			// Lost the claim race to another worker.
			continue
		}
		var t queue.Task
		if err := json.Unmarshal([]byte(member), &t); err != nil {
			w.logger.Error().Err(err).Msg("dropping malformed task payload")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.execute(ctx, t)
		}()
	}
}

func (w *Worker) execute(ctx context.Context, t queue.Task) {
	start := time.Now()
	err := w.handler(ctx, t)
	if err == nil {
		w.logger.Debug().
			Str("task", t.Name).
			Dur("elapsed", time.Since(start)).
			Msg("task executed")
		return
	}
	t.Attempts++
	if t.Attempts >= maxDeliveries {
		w.logger.Error().Err(err).
			Str("task", t.Name).
			Int("attempts", t.Attempts).
			Msg("task abandoned after repeated failures")
		return
	}
	w.logger.Warn().Err(err).
		Str("task", t.Name).
		Int("attempts", t.Attempts).
		Msg("task failed, redelivering")
	t.RunAt = time.Now().Add(redeliverDelay)
	payload, merr := json.Marshal(t)
	if merr != nil {
		return
	}
	// Direct ZADD: the dedupe key for this name is still held, and the
	// redelivery must not be collapsed against it.
	if err := w.rdb.ZAdd(ctx, tasksKey, &redis.Z{
		Score:  float64(t.RunAt.UnixMilli()),
		Member: payload,
	}).Err(); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Str("task", t.Name).Msg("task redelivery enqueue failed")
	}
}
