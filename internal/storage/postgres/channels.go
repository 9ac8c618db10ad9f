package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

const channelColumns = `
	id, user_id, source_calendar_id, target_calendar_id, resource_id,
	expiration, paused, sync_status, page_token, sync_token,
	events_synced, failed_events, retry_count, last_batch_time,
	last_error, time_max, created_at, updated_at`

func scanChannel(row pgx.Row) (*storage.Channel, error) {
	var (
		ch     storage.Channel
		failed []byte
	)
	err := row.Scan(
		&ch.ID, &ch.UserID, &ch.SourceCalendarID, &ch.TargetCalendarID, &ch.ResourceID,
		&ch.Expiration, &ch.Paused, &ch.Sync.Status, &ch.Sync.PageToken, &ch.Sync.SyncToken,
		&ch.Sync.EventsSynced, &failed, &ch.Sync.RetryCount, &ch.Sync.LastBatchTime,
		&ch.Sync.LastError, &ch.Sync.TimeMax, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(failed, &ch.Sync.FailedEvents); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *Store) CreateChannel(ctx context.Context, ch *storage.Channel) error {
	failed, err := json.Marshal(ch.Sync.FailedEvents)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		insert into channels (
			id, user_id, source_calendar_id, target_calendar_id, resource_id,
			expiration, paused, sync_status, page_token, sync_token,
			events_synced, failed_events, retry_count, last_batch_time,
			last_error, time_max
		) values (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`, ch.ID, ch.UserID, ch.SourceCalendarID, ch.TargetCalendarID, ch.ResourceID,
		ch.Expiration, ch.Paused, ch.Sync.Status, ch.Sync.PageToken, ch.Sync.SyncToken,
		ch.Sync.EventsSynced, failed, ch.Sync.RetryCount, ch.Sync.LastBatchTime,
		ch.Sync.LastError, ch.Sync.TimeMax)
	return err
}

func (s *Store) GetChannel(ctx context.Context, id string) (*storage.Channel, error) {
	row := s.pool.QueryRow(ctx, `
		select `+channelColumns+`
		from channels where id = $1`, id)
	return scanChannel(row)
}

func (s *Store) ListChannelsByUser(ctx context.Context, userID string) ([]*storage.Channel, error) {
	rows, err := s.pool.Query(ctx, `
		select `+channelColumns+`
		from channels where user_id = $1
		order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) ListExpiringChannels(ctx context.Context, before time.Time) ([]*storage.Channel, error) {
	rows, err := s.pool.Query(ctx, `
		select `+channelColumns+`
		from channels where expiration < $1
		order by expiration`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSyncState(ctx context.Context, channelID string, st storage.SyncState) error {
	failed, err := json.Marshal(st.FailedEvents)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		update channels
		set sync_status = $1, page_token = $2, sync_token = $3,
		    events_synced = $4, failed_events = $5, retry_count = $6,
		    last_batch_time = $7, last_error = $8, time_max = $9,
		    updated_at = now()
		where id = $10
	`, st.Status, st.PageToken, st.SyncToken,
		st.EventsSynced, failed, st.RetryCount,
		st.LastBatchTime, st.LastError, st.TimeMax, channelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetChannelsPaused(ctx context.Context, userID string, paused bool) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		update channels
		set paused = $1, updated_at = now()
		where user_id = $2 and paused <> $1
	`, paused, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		delete from channels where id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
