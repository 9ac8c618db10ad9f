package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sonroyaalmerol/gcal-mirror/internal/storage"
)

// Store is a mutex-guarded in-memory implementation used for the
// memory storage backend and in tests. All reads return copies so
// callers cannot alias internal state.
type Store struct {
	mu            sync.Mutex
	channels      map[string]*storage.Channel
	mappings      map[string]*storage.EventMapping
	coordinations map[string]*storage.SyncCoordination
	tokens        map[string][]byte
}

func New() *Store {
	return &Store{
		channels:      make(map[string]*storage.Channel),
		mappings:      make(map[string]*storage.EventMapping),
		coordinations: make(map[string]*storage.SyncCoordination),
		tokens:        make(map[string][]byte),
	}
}

func (s *Store) Close() {}

func mappingKey(sourceCalendarID, sourceEventID string) string {
	return sourceCalendarID + "\x00" + sourceEventID
}

func copyChannel(ch *storage.Channel) *storage.Channel {
	out := *ch
	out.Sync.FailedEvents = append([]string(nil), ch.Sync.FailedEvents...)
	return &out
}

func copyCoordination(c *storage.SyncCoordination) *storage.SyncCoordination {
	out := *c
	out.ChannelIDs = append([]string(nil), c.ChannelIDs...)
	return &out
}

func (s *Store) CreateChannel(ctx context.Context, ch *storage.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	cp := copyChannel(ch)
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.channels[cp.ID] = cp
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*storage.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyChannel(ch), nil
}

func (s *Store) ListChannelsByUser(ctx context.Context, userID string) ([]*storage.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Channel
	for _, ch := range s.channels {
		if ch.UserID == userID {
			out = append(out, copyChannel(ch))
		}
	}
	return out, nil
}

func (s *Store) ListExpiringChannels(ctx context.Context, before time.Time) ([]*storage.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Channel
	for _, ch := range s.channels {
		if ch.Expiration.Before(before) {
			out = append(out, copyChannel(ch))
		}
	}
	return out, nil
}

func (s *Store) UpdateSyncState(ctx context.Context, channelID string, st storage.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return storage.ErrNotFound
	}
	st.FailedEvents = append([]string(nil), st.FailedEvents...)
	ch.Sync = st
	ch.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetChannelsPaused(ctx context.Context, userID string, paused bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ch := range s.channels {
		if ch.UserID == userID && ch.Paused != paused {
			ch.Paused = paused
			ch.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

func (s *Store) GetMapping(ctx context.Context, sourceCalendarID, sourceEventID string) (*storage.EventMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[mappingKey(sourceCalendarID, sourceEventID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) PutMapping(ctx context.Context, m *storage.EventMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.mappings[mappingKey(m.SourceCalendarID, m.SourceEventID)] = &cp
	return nil
}

func (s *Store) DeleteMapping(ctx context.Context, sourceCalendarID, sourceEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, mappingKey(sourceCalendarID, sourceEventID))
	return nil
}

func (s *Store) DeleteMappingsByCalendar(ctx context.Context, sourceCalendarID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, m := range s.mappings {
		if m.SourceCalendarID == sourceCalendarID {
			delete(s.mappings, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) GetCoordination(ctx context.Context, userID string) (*storage.SyncCoordination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coordinations[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyCoordination(c), nil
}

func (s *Store) PutCoordination(ctx context.Context, c *storage.SyncCoordination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordinations[c.UserID] = copyCoordination(c)
	return nil
}

func (s *Store) MutateCoordination(ctx context.Context, userID string, fn func(c *storage.SyncCoordination) error) (*storage.SyncCoordination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coordinations[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	work := copyCoordination(c)
	if err := fn(work); err != nil {
		return nil, err
	}
	s.coordinations[userID] = copyCoordination(work)
	return work, nil
}

func (s *Store) DeleteCoordination(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.coordinations, userID)
	return nil
}

func (s *Store) GetUserToken(ctx context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), tok...), nil
}

func (s *Store) PutUserToken(ctx context.Context, userID string, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = append([]byte(nil), token...)
	return nil
}
