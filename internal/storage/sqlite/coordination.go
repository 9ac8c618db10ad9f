package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

func scanCoordination(row rowScanner) (*storage.SyncCoordination, error) {
	var (
		c   storage.SyncCoordination
		ids []byte
	)
	err := row.Scan(&c.UserID, &ids, &c.CurrentIndex, &c.IterationCount, &c.Status, &c.CreatedAt, &c.LastIterationAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ids, &c.ChannelIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCoordination(ctx context.Context, userID string) (*storage.SyncCoordination, error) {
	row := s.db.QueryRowContext(ctx, `
		select user_id, channel_ids, current_index, iteration_count, status, created_at, last_iteration_at
		from sync_coordinations where user_id = ?`, userID)
	return scanCoordination(row)
}

func (s *Store) PutCoordination(ctx context.Context, c *storage.SyncCoordination) error {
	ids, err := json.Marshal(c.ChannelIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into sync_coordinations (
			user_id, channel_ids, current_index, iteration_count, status, created_at, last_iteration_at
		) values (?, ?, ?, ?, ?, ?, ?)
		on conflict (user_id) do update set
			channel_ids = excluded.channel_ids,
			current_index = excluded.current_index,
			iteration_count = excluded.iteration_count,
			status = excluded.status,
			created_at = excluded.created_at,
			last_iteration_at = excluded.last_iteration_at
	`, c.UserID, string(ids), c.CurrentIndex, c.IterationCount, c.Status, c.CreatedAt, c.LastIterationAt)
	return err
}

// MutateCoordination serializes cursor advances on a write transaction.
// SQLite allows one writer at a time, so the read-modify-write below is
// atomic with respect to competing advances.
func (s *Store) MutateCoordination(ctx context.Context, userID string, fn func(c *storage.SyncCoordination) error) (*storage.SyncCoordination, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		select user_id, channel_ids, current_index, iteration_count, status, created_at, last_iteration_at
		from sync_coordinations where user_id = ?`, userID)
	c, err := scanCoordination(row)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}

	ids, err := json.Marshal(c.ChannelIDs)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		update sync_coordinations
		set channel_ids = ?, current_index = ?, iteration_count = ?,
		    status = ?, last_iteration_at = ?
		where user_id = ?
	`, string(ids), c.CurrentIndex, c.IterationCount, c.Status, c.LastIterationAt, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) DeleteCoordination(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from sync_coordinations where user_id = ?
	`, userID)
	return err
}
