package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

func scanCoordination(row pgx.Row) (*storage.SyncCoordination, error) {
	var (
		c   storage.SyncCoordination
		ids []byte
	)
	err := row.Scan(&c.UserID, &ids, &c.CurrentIndex, &c.IterationCount, &c.Status, &c.CreatedAt, &c.LastIterationAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	row := s.pool.QueryRow(ctx, `
		select user_id, channel_ids, current_index, iteration_count, status, created_at, last_iteration_at
		from sync_coordinations where user_id = $1`, userID)
	return scanCoordination(row)
}

func (s *Store) PutCoordination(ctx context.Context, c *storage.SyncCoordination) error {
	ids, err := json.Marshal(c.ChannelIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		insert into sync_coordinations (
			user_id, channel_ids, current_index, iteration_count, status, created_at, last_iteration_at
		) values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (user_id) do update set
			channel_ids = excluded.channel_ids,
			current_index = excluded.current_index,
			iteration_count = excluded.iteration_count,
			status = excluded.status,
			created_at = excluded.created_at,
			last_iteration_at = excluded.last_iteration_at
	`, c.UserID, ids, c.CurrentIndex, c.IterationCount, c.Status, c.CreatedAt, c.LastIterationAt)
	return err
}

// MutateCoordination serializes concurrent cursor advances on a row
// lock: the record is read under select for update, mutated, and
// written back in the same transaction.
func (s *Store) MutateCoordination(ctx context.Context, userID string, fn func(c *storage.SyncCoordination) error) (*storage.SyncCoordination, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		select user_id, channel_ids, current_index, iteration_count, status, created_at, last_iteration_at
		from sync_coordinations where user_id = $1
		for update`, userID)
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
	_, err = tx.Exec(ctx, `
		update sync_coordinations
		set channel_ids = $1, current_index = $2, iteration_count = $3,
		    status = $4, last_iteration_at = $5
		where user_id = $6
	`, ids, c.CurrentIndex, c.IterationCount, c.Status, c.LastIterationAt, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) DeleteCoordination(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		delete from sync_coordinations where user_id = $1
	`, userID)
	return err
}
