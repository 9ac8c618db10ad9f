package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// BatchResult reports the outcome of one bounded batch so the caller
// decides whether to schedule a continuation. The processor itself
// never enqueues anything.
type BatchResult struct {
	Status  storage.SyncStatus
	HasMore bool
	Synced  int64
}

// BatchProcessor runs one page-sized unit of backfill work per call,
// checkpointing progress to the store after every batch so any crash
// or redelivery resumes at the last persisted page token.
type BatchProcessor struct {
	store   storage.Store
	factory gcal.Factory
	mirror  *Mirrorer
	fetcher *PageFetcher
	cfg     config.SyncConfig
	logger  zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewBatchProcessor(store storage.Store, factory gcal.Factory, cfg config.SyncConfig, logger zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		store:   store,
		factory: factory,
		mirror:  NewMirrorer(store, logger),
		fetcher: NewPageFetcher(cfg, logger),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   ctxSleep,
	}
}

// Process runs one backfill batch for the channel: retry the
// failed-event ledger left by earlier batches, fetch one page, mirror
// its events, then persist the advanced checkpoint. Paused and already
// settled channels are no-ops.
func (p *BatchProcessor) Process(ctx context.Context, channelID string) (*BatchResult, error) {
	ch, err := p.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Paused {
		p.logger.Debug().Str("channel", ch.ID).Msg("channel paused, skipping batch")
		return &BatchResult{Status: ch.Sync.Status}, nil
	}
	if ch.Sync.Status.Terminal() {
		return &BatchResult{Status: ch.Sync.Status}, nil
	}
	if ch.TargetCalendarID == "" || ch.UserID == "" {
		return p.markFailed(ctx, ch, ErrMissingConfiguration)
	}

	api, err := p.factory.ClientFor(ctx, ch.UserID)
	if err != nil {
		return p.markFailed(ctx, ch, err)
	}

	st := ch.Sync
	st.Status = storage.StatusSyncing
	st.LastBatchTime = p.now().UTC()
	// The syncing transition is persisted before any provider work so a
	// status query during the first batch reads the live state.
	if err := p.store.UpdateSyncState(ctx, ch.ID, st); err != nil {
		return p.markFailed(ctx, ch, err)
	}

	// Failures recorded by earlier batches get their retry pass before
	// this batch fetches anything new; failures from this batch wait for
	// the next invocation.
	if err := p.retryPass(ctx, api, ch, &st); err != nil {
		return p.markFailed(ctx, ch, err)
	}

	page, err := p.fetcher.FetchPage(ctx, api, ch)
	if err != nil {
		// A missing source calendar settles the channel; a manual
		// restart is the recovery path.
		return p.markFailed(ctx, ch, err)
	}

	pacer := NewPacer(p.cfg.CallDelay)
	var synced int64
	for _, ev := range page.Events {
		if err := pacer.Wait(ctx); err != nil {
			return p.markFailed(ctx, ch, err)
		}
		ok, err := p.mirror.Mirror(ctx, api, ch.SourceCalendarID, ev.ID, ch.TargetCalendarID)
		if err != nil {
			st.FailedEvents = appendUnique(st.FailedEvents, ev.ID)
			continue
		}
		if ok {
			synced++
		}
	}
	st.EventsSynced += synced

	res := &BatchResult{Synced: synced}
	switch {
	case page.NextPageToken != "":
		st.PageToken = page.NextPageToken
		st.Status = storage.StatusSyncing
		res.HasMore = true
	case page.NextSyncToken != "":
		// Scan finished: graduate to incremental mode.
		st.PageToken = ""
		st.SyncToken = page.NextSyncToken
		st.Status = storage.StatusComplete
	default:
		st.PageToken = ""
		st.Status = storage.StatusComplete
	}
	st.LastError = ""
	st.LastBatchTime = p.now().UTC()
	res.Status = st.Status

	if err := p.store.UpdateSyncState(ctx, ch.ID, st); err != nil {
		return p.markFailed(ctx, ch, err)
	}

	p.logger.Info().
		Str("channel", ch.ID).
		Int64("synced", synced).
		Int64("total_synced", st.EventsSynced).
		Bool("has_more", res.HasMore).
		Str("status", string(st.Status)).
		Msg("batch processed")
	return res, nil
}

// ProcessIncremental consumes the channel's change feed after a push
// notification. It requires a sync token; channels still mid-backfill
// are skipped because the running scan will pick the changes up.
func (p *BatchProcessor) ProcessIncremental(ctx context.Context, channelID string) error {
	ch, err := p.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Paused || ch.Sync.SyncToken == "" {
		p.logger.Debug().Str("channel", ch.ID).Msg("channel not eligible for incremental sync")
		return nil
	}

	api, err := p.factory.ClientFor(ctx, ch.UserID)
	if err != nil {
		return err
	}

	st := ch.Sync
	pacer := NewPacer(p.cfg.CallDelay)
	pageToken := ""
	var synced int64
	for {
		page, err := api.ListEvents(ctx, gcal.ListQuery{
			CalendarID: ch.SourceCalendarID,
			SyncToken:  st.SyncToken,
			PageToken:  pageToken,
		})
		if errors.Is(err, gcal.ErrTokenExpired) {
			// Stale token: clear it and queue the channel for a fresh
			// scan on the next backfill batch.
			p.logger.Warn().Str("channel", ch.ID).Msg("sync token expired during incremental sync")
			st.SyncToken = ""
			st.Status = storage.StatusPending
			return p.store.UpdateSyncState(ctx, ch.ID, st)
		}
		if err != nil {
			return err
		}
		for _, ev := range page.Events {
			if err := pacer.Wait(ctx); err != nil {
				return err
			}
			ok, err := p.mirror.Mirror(ctx, api, ch.SourceCalendarID, ev.ID, ch.TargetCalendarID)
			if err != nil {
				st.FailedEvents = appendUnique(st.FailedEvents, ev.ID)
				continue
			}
			if ok {
				synced++
			}
		}
		if page.NextSyncToken != "" {
			st.SyncToken = page.NextSyncToken
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	st.EventsSynced += synced
	st.LastBatchTime = p.now().UTC()
	if err := p.store.UpdateSyncState(ctx, ch.ID, st); err != nil {
		return err
	}
	p.logger.Info().
		Str("channel", ch.ID).
		Int64("synced", synced).
		Msg("incremental sync processed")
	return nil
}

// markFailed settles the channel as failed and decides whether the
// cause also surfaces to the caller. A gone source calendar or missing
// configuration is terminal for this channel alone, so the batch itself
// succeeded; every other cause bubbles up for redelivery and alerting.
func (p *BatchProcessor) markFailed(ctx context.Context, ch *storage.Channel, cause error) (*BatchResult, error) {
	st := ch.Sync
	st.Status = storage.StatusFailed
	st.LastError = cause.Error()
	st.LastBatchTime = p.now().UTC()
	if err := p.store.UpdateSyncState(ctx, ch.ID, st); err != nil {
		p.logger.Error().Err(err).Str("channel", ch.ID).Msg("persisting failed state failed")
	}
	p.logger.Error().Err(cause).Str("channel", ch.ID).Msg("channel sync failed")
	res := &BatchResult{Status: storage.StatusFailed}
	if errors.Is(cause, gcal.ErrNotFound) || errors.Is(cause, ErrMissingConfiguration) {
		return res, nil
	}
	return res, cause
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
