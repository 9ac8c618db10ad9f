package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// Mirrorer performs the idempotent single-event upsert/delete against
// the mirror calendar. The event mapping is the only idempotency
// oracle: running Mirror twice for the same source event can never
// create a second mirror event.
type Mirrorer struct {
	store  storage.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewMirrorer(store storage.Store, logger zerolog.Logger) *Mirrorer {
	return &Mirrorer{store: store, logger: logger, now: time.Now}
}

// Mirror upserts one source event into the target calendar. It returns
// synced=false without error for the no-op cases (source gone,
// cancelled source). A non-nil error means the event should go into
// the retry ledger; the error has already been logged here with the
// source event ID attached.
func (m *Mirrorer) Mirror(ctx context.Context, api gcal.API, sourceCalendarID, sourceEventID, targetCalendarID string) (bool, error) {
	synced, err := m.mirror(ctx, api, sourceCalendarID, sourceEventID, targetCalendarID)
	if err != nil {
		m.logger.Error().Err(err).
			Str("source_calendar", sourceCalendarID).
			Str("source_event", sourceEventID).
			Msg("event mirror failed")
		return false, err
	}
	return synced, nil
}

func (m *Mirrorer) mirror(ctx context.Context, api gcal.API, sourceCalendarID, sourceEventID, targetCalendarID string) (bool, error) {
	mapping, err := m.store.GetMapping(ctx, sourceCalendarID, sourceEventID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	src, err := api.GetEvent(ctx, sourceCalendarID, sourceEventID)
	if errors.Is(err, gcal.ErrNotFound) {
		m.logger.Debug().Str("source_event", sourceEventID).Msg("source event gone, skipping")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if src.Status == gcal.StatusCancelled {
		if mapping != nil {
			if err := api.DeleteEvent(ctx, targetCalendarID, mapping.TargetEventID); err != nil && !errors.Is(err, gcal.ErrNotFound) {
				return false, err
			}
			if err := m.store.DeleteMapping(ctx, sourceCalendarID, sourceEventID); err != nil {
				return false, err
			}
		}
		// Deletions are not counted as synced events.
		return false, nil
	}

	ev := m.buildMirrorEvent(sourceCalendarID, src)

	if mapping == nil {
		inserted, err := api.InsertEvent(ctx, targetCalendarID, ev)
		if err != nil {
			return false, err
		}
		err = m.store.PutMapping(ctx, &storage.EventMapping{
			SourceCalendarID: sourceCalendarID,
			SourceEventID:    sourceEventID,
			TargetEventID:    inserted.ID,
			LastSynced:       m.now().UTC(),
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}

	if _, err := api.UpdateEvent(ctx, targetCalendarID, mapping.TargetEventID, ev); err != nil {
		return false, err
	}
	mapping.LastSynced = m.now().UTC()
	if err := m.store.PutMapping(ctx, mapping); err != nil {
		return false, err
	}
	return true, nil
}

// buildMirrorEvent derives the mirror's display fields: the summary is
// prefixed with a label from the source calendar's local part, the
// mirror is always private, and transparency is carried verbatim so
// the mirror keeps the source's busy/free semantics.
func (m *Mirrorer) buildMirrorEvent(sourceCalendarID string, src *gcal.Event) *gcal.Event {
	return &gcal.Event{
		Summary:      "[" + calendarLabel(sourceCalendarID) + "] " + src.Summary,
		Description:  src.Description,
		Location:     src.Location,
		Start:        src.Start,
		End:          src.End,
		Transparency: src.Transparency,
		Visibility:   "private",
		Private: map[string]string{
			"freeBusy": freeBusy(src.Transparency),
		},
	}
}

func calendarLabel(calendarID string) string {
	if i := strings.IndexByte(calendarID, '@'); i > 0 {
		return calendarID[:i]
	}
	return calendarID
}

func freeBusy(transparency string) string {
	if transparency == "transparent" {
		return "free"
	}
	return "busy"
}
