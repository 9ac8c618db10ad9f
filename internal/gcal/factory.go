package gcal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// ClientFactory builds per-user calendar clients from stored OAuth
// tokens. The oauth2 token source refreshes transparently; refreshed
// tokens are written back so the next invocation starts warm.
type ClientFactory struct {
	oauth  *oauth2.Config
	store  storage.Store
	logger zerolog.Logger
}

func NewFactory(cfg config.GoogleConfig, store storage.Store, logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarScope},
		},
		store:  store,
		logger: logger,
	}
}

func (f *ClientFactory) ClientFor(ctx context.Context, userID string) (API, error) {
	raw, err := f.store.GetUserToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load token for %s: %w", userID, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token for %s: %w", userID, err)
	}

	src := &savingTokenSource{
		base:   f.oauth.TokenSource(ctx, &tok),
		last:   tok.AccessToken,
		userID: userID,
		store:  f.store,
		logger: f.logger,
	}
	svc, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &client{svc: svc}, nil
}

type savingTokenSource struct {
	base   oauth2.TokenSource
	last   string
	userID string
	store  storage.Store
	logger zerolog.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if raw, err := json.Marshal(tok); err == nil {
			if err := s.store.PutUserToken(context.Background(), s.userID, raw); err != nil {
				s.logger.Warn().Err(err).Str("user", s.userID).Msg("persist refreshed token failed")
			}
		}
	}
	return tok, nil
}
