package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

const channelColumns = `
	id, user_id, source_calendar_id, target_calendar_id, resource_id,
	expiration, paused, sync_status, page_token, sync_token,
	events_synced, failed_events, retry_count, last_batch_time,
	last_error, time_max, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*storage.Channel, error) {
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
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.db.ExecContext(ctx, `
		insert into channels (
			id, user_id, source_calendar_id, target_calendar_id, resource_id,
			expiration, paused, sync_status, page_token, sync_token,
			events_synced, failed_events, retry_count, last_batch_time,
			last_error, time_max
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ch.ID, ch.UserID, ch.SourceCalendarID, ch.TargetCalendarID, ch.ResourceID,
		ch.Expiration, ch.Paused, ch.Sync.Status, ch.Sync.PageToken, ch.Sync.SyncToken,
		ch.Sync.EventsSynced, string(failed), ch.Sync.RetryCount, ch.Sync.LastBatchTime,
		ch.Sync.LastError, ch.Sync.TimeMax)
	return err
}

func (s *Store) GetChannel(ctx context.Context, id string) (*storage.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+channelColumns+`
		from channels where id = ?`, id)
	return scanChannel(row)
}

func (s *Store) ListChannelsByUser(ctx context.Context, userID string) ([]*storage.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+channelColumns+`
		from channels where user_id = ?
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
	rows, err := s.db.QueryContext(ctx, `
		select `+channelColumns+`
		from channels where expiration < ?
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
	res, err := s.db.ExecContext(ctx, `
		update channels
		set sync_status = ?, page_token = ?, sync_token = ?,
		    events_synced = ?, failed_events = ?, retry_count = ?,
		    last_batch_time = ?, last_error = ?, time_max = ?,
		    updated_at = current_timestamp
		where id = ?
	`, st.Status, st.PageToken, st.SyncToken,
		st.EventsSynced, string(failed), st.RetryCount,
		st.LastBatchTime, st.LastError, st.TimeMax, channelID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetChannelsPaused(ctx context.Context, userID string, paused bool) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update channels
		set paused = ?, updated_at = current_timestamp
		where user_id = ? and paused <> ?
	`, paused, userID, paused)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from channels where id = ?
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
