package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSyncing  SyncStatus = "syncing"
	StatusComplete SyncStatus = "complete"
	StatusFailed   SyncStatus = "failed"
)

// Terminal reports whether the status is a terminal state for backfill.
func (s SyncStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

type CoordinationStatus string

const (
	CoordinationRunning  CoordinationStatus = "running"
	CoordinationComplete CoordinationStatus = "complete"
	CoordinationFailed   CoordinationStatus = "failed"
)

// SyncState is the per-channel backfill/incremental progress record.
// Exactly one of PageToken and SyncToken is meaningful at a time:
// PageToken while a backfill scan is in flight, SyncToken once the
// channel has graduated to incremental mode.
type SyncState struct {
	Status        SyncStatus
	PageToken     string
	SyncToken     string
	EventsSynced  int64
	FailedEvents  []string
	RetryCount    int
	LastBatchTime time.Time
	LastError     string
	TimeMax       time.Time
}

// Channel is one source-calendar subscription for one user.
type Channel struct {
	ID               string
	UserID           string
	SourceCalendarID string
	TargetCalendarID string
	ResourceID       string
	Expiration       time.Time
	Paused           bool
	Sync             SyncState
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EventMapping links a source event to its mirror. Its existence is the
// sole idempotency oracle for "already mirrored".
type EventMapping struct {
	SourceCalendarID string
	SourceEventID    string
	TargetEventID    string
	LastSynced       time.Time
}

// SyncCoordination is the per-user round-robin cursor over channels.
// It is mutated only through MutateCoordination so that concurrent
// invocations racing on CurrentIndex serialize on one transaction.
type SyncCoordination struct {
	UserID          string
	ChannelIDs      []string
	CurrentIndex    int
	IterationCount  int
	Status          CoordinationStatus
	CreatedAt       time.Time
	LastIterationAt time.Time
}

type Store interface {
	Close()

	// Channels
	CreateChannel(ctx context.Context, ch *Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error)
	ListChannelsByUser(ctx context.Context, userID string) ([]*Channel, error)
	ListExpiringChannels(ctx context.Context, before time.Time) ([]*Channel, error)
	UpdateSyncState(ctx context.Context, channelID string, st SyncState) error
	SetChannelsPaused(ctx context.Context, userID string, paused bool) (int, error)
	DeleteChannel(ctx context.Context, id string) error

	// Event mappings
	GetMapping(ctx context.Context, sourceCalendarID, sourceEventID string) (*EventMapping, error)
	PutMapping(ctx context.Context, m *EventMapping) error
	DeleteMapping(ctx context.Context, sourceCalendarID, sourceEventID string) error
	DeleteMappingsByCalendar(ctx context.Context, sourceCalendarID string) (int, error)

	// Coordination
	GetCoordination(ctx context.Context, userID string) (*SyncCoordination, error)
	PutCoordination(ctx context.Context, c *SyncCoordination) error
	// MutateCoordination runs fn against the current record inside a
	// transaction and persists the result. fn returning an error aborts
	// the transaction and the error is returned unchanged.
	MutateCoordination(ctx context.Context, userID string, fn func(c *SyncCoordination) error) (*SyncCoordination, error)
	DeleteCoordination(ctx context.Context, userID string) error

	// OAuth tokens, stored opaquely; the provider client unmarshals.
	GetUserToken(ctx context.Context, userID string) ([]byte, error)
	PutUserToken(ctx context.Context, userID string, token []byte) error
}
