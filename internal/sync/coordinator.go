package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/queue"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// Coordinator drives a user's channels through backfill one batch at a
// time, round-robin. Each Advance claims exactly one step through a
// transactional cursor mutation, runs one batch for the claimed
// channel, then schedules the next step unless every channel has
// settled. Progress lives entirely in the store, so a crashed or
// redelivered step resumes cleanly.
type Coordinator struct {
	store  storage.Store
	batch  *BatchProcessor
	queue  queue.Queue
	cfg    config.SyncConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewCoordinator(store storage.Store, batch *BatchProcessor, q queue.Queue, cfg config.SyncConfig, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		batch:  batch,
		queue:  q,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start creates a fresh coordination cursor over the given channels and
// kicks off the first step. Any prior cursor for the user is replaced.
func (c *Coordinator) Start(ctx context.Context, userID string, channelIDs []string) error {
	now := c.now().UTC()
	coord := &storage.SyncCoordination{
		UserID:          userID,
		ChannelIDs:      channelIDs,
		CurrentIndex:    0,
		IterationCount:  0,
		Status:          storage.CoordinationRunning,
		CreatedAt:       now,
		LastIterationAt: now,
	}
	if err := c.store.PutCoordination(ctx, coord); err != nil {
		return err
	}
	c.logger.Info().
		Str("user", userID).
		Int("channels", len(channelIDs)).
		Msg("coordination started")
	return c.queue.Enqueue(ctx, queue.CoordinateTask(userID, now.UnixMilli(), 0, now))
}

// Advance claims and executes one round-robin step for the user. The
// claim happens inside a single transactional mutation of the cursor,
// so two redeliveries of the same step cannot both run a batch for the
// same position.
func (c *Coordinator) Advance(ctx context.Context, userID string) error {
	now := c.now().UTC()
	var (
		channelID string
		runaway   bool
	)
	coord, err := c.store.MutateCoordination(ctx, userID, func(co *storage.SyncCoordination) error {
		if co.Status != storage.CoordinationRunning {
			return errCoordinationSettled
		}
		if co.IterationCount >= c.cfg.MaxIterations || now.Sub(co.CreatedAt) > c.cfg.MaxCoordinationAge {
			co.Status = storage.CoordinationFailed
			co.LastIterationAt = now
			runaway = true
			return nil
		}
		if len(co.ChannelIDs) == 0 {
			co.Status = storage.CoordinationComplete
			co.LastIterationAt = now
			return nil
		}
		if co.CurrentIndex >= len(co.ChannelIDs) {
			co.CurrentIndex = 0
		}
		channelID = co.ChannelIDs[co.CurrentIndex]
		co.CurrentIndex = (co.CurrentIndex + 1) % len(co.ChannelIDs)
		co.IterationCount++
		co.LastIterationAt = now
		return nil
	})
	if errors.Is(err, errCoordinationSettled) {
		c.logger.Debug().Str("user", userID).Msg("coordination already settled, ignoring step")
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn().Str("user", userID).Msg("no coordination record for step")
		return nil
	}
	if err != nil {
		return err
	}
	if runaway {
		c.logger.Error().
			Str("user", userID).
			Int("iterations", coord.IterationCount).
			Time("created_at", coord.CreatedAt).
			Msg("coordination exceeded safety bounds")
		return ErrCoordinationRunaway
	}
	if channelID == "" {
		return nil
	}

	if _, err := c.batch.Process(ctx, channelID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Str("channel", channelID).Msg("channel vanished mid-coordination")
		} else {
			// One channel's bad batch must not stall its siblings; the
			// census below decides whether the run keeps going.
			c.logger.Error().Err(err).Str("channel", channelID).Msg("coordinated batch failed")
		}
	}

	return c.settleOrContinue(ctx, coord)
}

// settleOrContinue takes a census of the cursor's channels: if any is
// still working it schedules the next step, otherwise it settles the
// cursor as complete or, when every surviving channel failed, failed.
func (c *Coordinator) settleOrContinue(ctx context.Context, coord *storage.SyncCoordination) error {
	var seen, complete, failed int
	allTerminal := true
	for _, id := range coord.ChannelIDs {
		ch, err := c.store.GetChannel(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Str("channel", id).Msg("coordinated channel no longer exists")
			continue
		}
		if err != nil {
			return err
		}
		seen++
		switch {
		case ch.Sync.Status == storage.StatusComplete:
			complete++
		case ch.Sync.Status == storage.StatusFailed:
			failed++
		default:
			allTerminal = false
		}
	}

	if !allTerminal {
		return c.queue.Enqueue(ctx, queue.CoordinateTask(coord.UserID, coord.CreatedAt.UnixMilli(), coord.IterationCount, c.now().UTC().Add(c.cfg.ContinueDelay)))
	}

	status := storage.CoordinationComplete
	if seen > 0 && failed == seen {
		status = storage.CoordinationFailed
	}
	if _, err := c.store.MutateCoordination(ctx, coord.UserID, func(co *storage.SyncCoordination) error {
		if co.Status == storage.CoordinationRunning {
			co.Status = status
			co.LastIterationAt = c.now().UTC()
		}
		return nil
	}); err != nil {
		return err
	}

	c.logger.Info().
		Str("user", coord.UserID).
		Int("iterations", coord.IterationCount).
		Int("complete", complete).
		Int("failed", failed).
		Str("status", string(status)).
		Msg("coordination settled")
	if status == storage.CoordinationFailed {
		return ErrAllChannelsFailed
	}
	return nil
}
