package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

func (s *Store) GetUserToken(ctx context.Context, userID string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		select token from user_tokens where user_id = ?`, userID)
	var token []byte
	err := row.Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (s *Store) PutUserToken(ctx context.Context, userID string, token []byte) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_tokens (user_id, token, updated_at)
		values (?, ?, current_timestamp)
		on conflict (user_id) do update set token = excluded.token, updated_at = current_timestamp
	`, userID, string(token))
	return err
}
