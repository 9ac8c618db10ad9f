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

// PageFetcher wraps one paginated list-events call, choosing between
// incremental (sync token) and backfill (windowed scan) mode and
// absorbing the self-healing token-expiry conditions. A deleted source
// calendar surfaces as gcal.ErrNotFound and is the caller's terminal
// condition to handle.
type PageFetcher struct {
	cfg    config.SyncConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewPageFetcher(cfg config.SyncConfig, logger zerolog.Logger) *PageFetcher {
	return &PageFetcher{cfg: cfg, logger: logger, now: time.Now}
}

func (f *PageFetcher) FetchPage(ctx context.Context, api gcal.API, ch *storage.Channel) (*gcal.Page, error) {
	if ch.Sync.SyncToken != "" && ch.Sync.PageToken == "" {
		page, err := api.ListEvents(ctx, gcal.ListQuery{
			CalendarID: ch.SourceCalendarID,
			SyncToken:  ch.Sync.SyncToken,
		})
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, gcal.ErrTokenExpired) {
			return nil, err
		}
		// Stale sync token: discard it and fall back to a full scan
		// seeded from now.
		f.logger.Warn().Str("channel", ch.ID).Msg("sync token expired, restarting full scan")
		return f.backfill(ctx, api, ch, "")
	}
	return f.backfill(ctx, api, ch, ch.Sync.PageToken)
}

func (f *PageFetcher) backfill(ctx context.Context, api gcal.API, ch *storage.Channel, pageToken string) (*gcal.Page, error) {
	timeMax := ch.Sync.TimeMax
	if timeMax.IsZero() {
		timeMax = f.now().Add(f.cfg.BackfillHorizon)
	}
	q := gcal.ListQuery{
		CalendarID: ch.SourceCalendarID,
		PageToken:  pageToken,
		TimeMin:    f.now(),
		TimeMax:    timeMax,
		PageSize:   f.cfg.PageSize,
	}
	page, err := api.ListEvents(ctx, q)
	if errors.Is(err, gcal.ErrTokenExpired) && q.PageToken != "" {
		// Expired pagination checkpoint: restart the scan from the
		// first page instead of failing the batch.
		f.logger.Warn().Str("channel", ch.ID).Msg("page token expired, restarting scan")
		q.PageToken = ""
		page, err = api.ListEvents(ctx, q)
	}
	return page, err
}
