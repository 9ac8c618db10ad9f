package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

func (s *Store) GetMapping(ctx context.Context, sourceCalendarID, sourceEventID string) (*storage.EventMapping, error) {
	row := s.pool.QueryRow(ctx, `
		select source_calendar_id, source_event_id, target_event_id, last_synced
		from event_mappings
		where source_calendar_id = $1 and source_event_id = $2`, sourceCalendarID, sourceEventID)
	var m storage.EventMapping
	err := row.Scan(&m.SourceCalendarID, &m.SourceEventID, &m.TargetEventID, &m.LastSynced)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) PutMapping(ctx context.Context, m *storage.EventMapping) error {
	_, err := s.pool.Exec(ctx, `
		insert into event_mappings (source_calendar_id, source_event_id, target_event_id, last_synced)
		values ($1, $2, $3, $4)
		on conflict (source_calendar_id, source_event_id)
		do update set target_event_id = excluded.target_event_id, last_synced = excluded.last_synced
	`, m.SourceCalendarID, m.SourceEventID, m.TargetEventID, m.LastSynced)
	return err
}

func (s *Store) DeleteMapping(ctx context.Context, sourceCalendarID, sourceEventID string) error {
	_, err := s.pool.Exec(ctx, `
		delete from event_mappings
		where source_calendar_id = $1 and source_event_id = $2
	`, sourceCalendarID, sourceEventID)
	return err
}

func (s *Store) DeleteMappingsByCalendar(ctx context.Context, sourceCalendarID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		delete from event_mappings where source_calendar_id = $1
	`, sourceCalendarID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
