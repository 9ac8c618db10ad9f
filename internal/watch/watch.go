package watch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// Manager owns the provider push-channel lifecycle: creating watches
// for new mirror pairs, tearing them down, and renewing the ones close
// to expiry.
type Manager struct {
	store   storage.Store
	factory gcal.Factory
	cfg     config.WatchConfig
	sync    config.SyncConfig
	logger  zerolog.Logger
	now     func() time.Time
}

func NewManager(store storage.Store, factory gcal.Factory, cfg config.WatchConfig, syncCfg config.SyncConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		factory: factory,
		cfg:     cfg,
		sync:    syncCfg,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateChannel registers a push watch on the source calendar and
// persists the subscription with a pending sync state. The backfill
// window is pinned at creation so every batch of the scan shares the
// same upper bound.
func (m *Manager) CreateChannel(ctx context.Context, userID, sourceCalendarID, targetCalendarID string) (*storage.Channel, error) {
	api, err := m.factory.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	channelID := uuid.NewString()
	expiration := now.Add(time.Duration(m.cfg.ExpirationDays) * 24 * time.Hour)

	resourceID, err := api.Watch(ctx, sourceCalendarID, channelID, m.sync.WebhookURL, expiration)
	if err != nil {
		return nil, err
	}

	ch := &storage.Channel{
		ID:               channelID,
		UserID:           userID,
		SourceCalendarID: sourceCalendarID,
		TargetCalendarID: targetCalendarID,
		ResourceID:       resourceID,
		Expiration:       expiration,
		Sync: storage.SyncState{
			Status:  storage.StatusPending,
			TimeMax: now.Add(m.sync.BackfillHorizon),
		},
	}
	if err := m.store.CreateChannel(ctx, ch); err != nil {
		// Best effort: do not leave an orphaned provider watch behind.
		if stopErr := api.StopWatch(ctx, channelID, resourceID); stopErr != nil {
			m.logger.Warn().Err(stopErr).Str("channel", channelID).Msg("failed to stop orphaned watch")
		}
		return nil, err
	}

	m.logger.Info().
		Str("channel", channelID).
		Str("user", userID).
		Str("source_calendar", sourceCalendarID).
		Time("expiration", expiration).
		Msg("watch channel created")
	return ch, nil
}

// StopUserChannels stops every provider watch a user holds and deletes
// the subscription records. Provider-side stop failures are logged and
// the local record is removed anyway.
func (m *Manager) StopUserChannels(ctx context.Context, userID string) (int, error) {
	channels, err := m.store.ListChannelsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	api, err := m.factory.ClientFor(ctx, userID)
	if err != nil {
		return 0, err
	}

	stopped := 0
	for _, ch := range channels {
		if err := api.StopWatch(ctx, ch.ID, ch.ResourceID); err != nil && !errors.Is(err, gcal.ErrNotFound) {
			m.logger.Warn().Err(err).Str("channel", ch.ID).Msg("failed to stop watch")
		}
		if err := m.store.DeleteChannel(ctx, ch.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return stopped, err
		}
		stopped++
	}
	return stopped, nil
}

// RenewExpiring replaces every watch expiring inside the renewal window
// with a fresh one, carrying the channel's sync state across so
// incremental sync continues seamlessly under the new ID.
func (m *Manager) RenewExpiring(ctx context.Context) error {
	cutoff := m.now().UTC().Add(m.cfg.RenewalWindow)
	channels, err := m.store.ListExpiringChannels(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		busy, err := m.backfillRunning(ctx, ch.UserID)
		if err != nil {
			m.logger.Error().Err(err).Str("channel", ch.ID).Msg("coordination lookup failed, skipping renewal")
			continue
		}
		if busy {
			// A running coordination tracks the channel by its current
			// ID; swapping it mid-backfill would drop the channel from
			// the census. The next sweep picks it up.
			m.logger.Debug().Str("channel", ch.ID).Msg("backfill running, deferring renewal")
			continue
		}
		if err := m.renew(ctx, ch); err != nil {
			m.logger.Error().Err(err).Str("channel", ch.ID).Msg("watch renewal failed")
		}
	}
	return nil
}

func (m *Manager) backfillRunning(ctx context.Context, userID string) (bool, error) {
	coord, err := m.store.GetCoordination(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return coord.Status == storage.CoordinationRunning, nil
}

func (m *Manager) renew(ctx context.Context, ch *storage.Channel) error {
	api, err := m.factory.ClientFor(ctx, ch.UserID)
	if err != nil {
		return err
	}

	if err := api.StopWatch(ctx, ch.ID, ch.ResourceID); err != nil && !errors.Is(err, gcal.ErrNotFound) {
		m.logger.Warn().Err(err).Str("channel", ch.ID).Msg("failed to stop expiring watch")
	}

	now := m.now().UTC()
	newID := uuid.NewString()
	expiration := now.Add(time.Duration(m.cfg.ExpirationDays) * 24 * time.Hour)
	resourceID, err := api.Watch(ctx, ch.SourceCalendarID, newID, m.sync.WebhookURL, expiration)
	if err != nil {
		return err
	}

	renewed := *ch
	renewed.ID = newID
	renewed.ResourceID = resourceID
	renewed.Expiration = expiration
	if err := m.store.CreateChannel(ctx, &renewed); err != nil {
		return err
	}
	if err := m.store.DeleteChannel(ctx, ch.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	m.logger.Info().
		Str("old_channel", ch.ID).
		Str("channel", newID).
		Time("expiration", expiration).
		Msg("watch channel renewed")
	return nil
}
