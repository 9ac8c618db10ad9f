package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/cache"
	"github.com/sonroyaalmerol/gcal-mirror/internal/config"
)

type Principal struct {
	Subject string
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// Verifier validates bearer JWTs on the control and task endpoints
// against a JWKS endpoint, with a short-lived cache of verification
// results so hot callers do not re-parse the same token.
type Verifier struct {
	cfg    config.AuthConfig
	logger zerolog.Logger

	mu     sync.Mutex
	keyset jwk.Set
	ksAt   time.Time
	ksTTL  time.Duration

	verCache *cache.Cache[string, *Principal]
}

func NewVerifier(cfg config.AuthConfig, logger zerolog.Logger) *Verifier {
	return &Verifier{
		cfg:      cfg,
		logger:   logger,
		ksTTL:    10 * time.Minute,
		verCache: cache.New[string, *Principal](2 * time.Minute),
	}
}

func (v *Verifier) keys(ctx context.Context) (jwk.Set, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keyset != nil && time.Since(v.ksAt) <= v.ksTTL {
		return v.keyset, nil
	}
	set, err := jwk.Fetch(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, err
	}
	v.keyset = set
	v.ksAt = time.Now()
	return set, nil
}

func (v *Verifier) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if p, ok := v.verCache.Get(token); ok && p != nil {
		return p, nil
	}
	if v.cfg.JWKSURL == "" {
		return nil, errors.New("no jwt validation configured")
	}

	set, err := v.keys(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := jwt.Parse([]byte(token), jwt.WithKeySet(set), jwt.WithValidate(true))
	if err != nil {
		return nil, err
	}
	if iss := tok.Issuer(); v.cfg.Issuer != "" && iss != v.cfg.Issuer {
		return nil, errors.New("issuer mismatch")
	}
	if aud := tok.Audience(); len(aud) > 0 && v.cfg.Audience != "" {
		found := false
		for _, a := range aud {
			if a == v.cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("audience mismatch")
		}
	}
	sub := tok.Subject()
	if sub == "" {
		return nil, errors.New("no sub")
	}

	p := &Principal{Subject: sub}
	v.verCache.Set(token, p)
	return p, nil
}

// Middleware enforces bearer auth when enabled. The webhook endpoint is
// excluded by the router; provider push notifications carry no bearer.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.cfg.RequireBearer {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p, err := v.Authenticate(r.Context(), parts[1])
		if err != nil {
			v.logger.Debug().Err(err).Msg("bearer rejected")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
