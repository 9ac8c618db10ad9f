package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

func (s *Store) GetUserToken(ctx context.Context, userID string) ([]byte, error) {
	row := s.pool.QueryRow(ctx, `
		select token from user_tokens where user_id = $1`, userID)
	var token []byte
	err := row.Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (s *Store) PutUserToken(ctx context.Context, userID string, token []byte) error {
	_, err := s.pool.Exec(ctx, `
		insert into user_tokens (user_id, token, updated_at)
		values ($1, $2, now())
		on conflict (user_id) do update set token = excluded.token, updated_at = now()
	`, userID, token)
	return err
}
