package sync

import (
	"context"
	"time"

	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

const maxRetryBackoff = 30 * time.Second

// retryBackoff doubles per attempt from one second, capped.
func retryBackoff(retryCount int) time.Duration {
	d := time.Second << uint(retryCount)
	if d <= 0 || d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}

// retryPass re-mirrors the channel's failed-event ledger in place.
// Events that now succeed leave the ledger; events that fail again
// stay. The retry counter advances on every pass regardless of outcome
// so a permanently broken event cannot retry forever. Mutates st.
func (p *BatchProcessor) retryPass(ctx context.Context, api gcal.API, ch *storage.Channel, st *storage.SyncState) error {
	if len(st.FailedEvents) == 0 {
		return nil
	}
	if st.RetryCount >= p.cfg.MaxRetries {
		p.logger.Warn().
			Str("channel", ch.ID).
			Int("failed", len(st.FailedEvents)).
			Msg("retry budget exhausted, abandoning failed events")
		return nil
	}

	if err := p.sleep(ctx, retryBackoff(st.RetryCount)); err != nil {
		return err
	}

	pacer := NewPacer(p.cfg.CallDelay)
	var still []string
	for _, eventID := range st.FailedEvents {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		synced, err := p.mirror.Mirror(ctx, api, ch.SourceCalendarID, eventID, ch.TargetCalendarID)
		if err != nil {
			still = append(still, eventID)
			continue
		}
		if synced {
			st.EventsSynced++
		}
	}

	p.logger.Info().
		Str("channel", ch.ID).
		Int("recovered", len(st.FailedEvents)-len(still)).
		Int("remaining", len(still)).
		Int("retry_count", st.RetryCount+1).
		Msg("retry pass finished")

	st.FailedEvents = still
	st.RetryCount++
	return nil
}
