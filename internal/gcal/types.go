package gcal

import (
	"context"
	"time"
)

// EventTime mirrors the provider's start/end shape: DateTime for timed
// events, Date for all-day events.
type EventTime struct {
	DateTime string
	Date     string
	TimeZone string
}

// Event is the provider-neutral event record the sync engine works with.
type Event struct {
	ID           string
	Status       string
	Summary      string
	Description  string
	Location     string
	Transparency string
	Visibility   string
	Start        EventTime
	End          EventTime
	// Private carries provider extended properties visible only to the
	// calendar that owns the copy.
	Private map[string]string
}

const StatusCancelled = "cancelled"

// ListQuery selects between incremental mode (SyncToken set, nothing
// else sent) and a windowed backfill scan.
type ListQuery struct {
	CalendarID string
	SyncToken  string
	PageToken  string
	TimeMin    time.Time
	TimeMax    time.Time
	PageSize   int64
}

// Page is one page of a list-events response. NextPageToken means more
// pages remain; NextSyncToken means the scan is caught up and the
// channel can graduate to incremental mode.
type Page struct {
	Events        []*Event
	NextPageToken string
	NextSyncToken string
}

// API is the outbound port to the calendar provider, already
// authenticated for one user.
type API interface {
	GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev *Event) (*Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *Event) (*Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListEvents(ctx context.Context, q ListQuery) (*Page, error)

	Watch(ctx context.Context, calendarID, channelID, address string, expiration time.Time) (resourceID string, err error)
	StopWatch(ctx context.Context, channelID, resourceID string) error
}

// Factory builds an authenticated API for a user. Constructed once at
// startup and injected; no process-wide singletons.
type Factory interface {
	ClientFor(ctx context.Context, userID string) (API, error)
}
