// Package gcaltest provides an in-memory calendar API fake for tests.
package gcaltest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sonroyaalmerol/gcal-mirror/internal/gcal"
)

// Fake implements gcal.API over in-memory calendars with deterministic
// pagination. Error hooks let tests inject failures per call site.
type Fake struct {
	mu        sync.Mutex
	calendars map[string]map[string]*gcal.Event
	order     map[string][]string
	insertSeq int
	syncSeq   int

	// SyncPages are served one per sync-token list call. When the slice
	// is exhausted an empty page with a fresh sync token is returned.
	SyncPages []*gcal.Page

	// Hooks run before the corresponding operation; a non-nil return
	// short-circuits the call.
	GetHook    func(calendarID, eventID string) error
	InsertHook func(calendarID string, ev *gcal.Event) error
	UpdateHook func(calendarID, eventID string) error
	DeleteHook func(calendarID, eventID string) error
	ListHook   func(q gcal.ListQuery) error
	WatchErr   error

	// Calls records each operation as "op:calendarID" in order.
	Calls []string
}

func NewFake() *Fake {
	return &Fake{
		calendars: make(map[string]map[string]*gcal.Event),
		order:     make(map[string][]string),
	}
}

func (f *Fake) record(op, calendarID string) {
	f.Calls = append(f.Calls, op+":"+calendarID)
}

// AddEvent seeds an event. Events list in insertion order.
func (f *Fake) AddEvent(calendarID string, ev *gcal.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensure(calendarID)
	if _, exists := f.calendars[calendarID][ev.ID]; !exists {
		f.order[calendarID] = append(f.order[calendarID], ev.ID)
	}
	cp := *ev
	f.calendars[calendarID][ev.ID] = &cp
}

func (f *Fake) ensure(calendarID string) {
	if f.calendars[calendarID] == nil {
		f.calendars[calendarID] = make(map[string]*gcal.Event)
	}
}

// EventCount reports how many events a calendar holds.
func (f *Fake) EventCount(calendarID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calendars[calendarID])
}

// Events returns the calendar's events in insertion order.
func (f *Fake) Events(calendarID string) []*gcal.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gcal.Event
	for _, id := range f.order[calendarID] {
		if ev, ok := f.calendars[calendarID][id]; ok {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out
}

func (f *Fake) GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get", calendarID)
	if f.GetHook != nil {
		if err := f.GetHook(calendarID, eventID); err != nil {
			return nil, err
		}
	}
	ev, ok := f.calendars[calendarID][eventID]
	if !ok {
		return nil, gcal.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *Fake) InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("insert", calendarID)
	if f.InsertHook != nil {
		if err := f.InsertHook(calendarID, ev); err != nil {
			return nil, err
		}
	}
	f.ensure(calendarID)
	f.insertSeq++
	cp := *ev
	cp.ID = fmt.Sprintf("mirror-%d", f.insertSeq)
	f.calendars[calendarID][cp.ID] = &cp
	f.order[calendarID] = append(f.order[calendarID], cp.ID)
	out := cp
	return &out, nil
}

func (f *Fake) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update", calendarID)
	if f.UpdateHook != nil {
		if err := f.UpdateHook(calendarID, eventID); err != nil {
			return nil, err
		}
	}
	if _, ok := f.calendars[calendarID][eventID]; !ok {
		return nil, gcal.ErrNotFound
	}
	cp := *ev
	cp.ID = eventID
	f.calendars[calendarID][eventID] = &cp
	out := cp
	return &out, nil
}

func (f *Fake) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete", calendarID)
	if f.DeleteHook != nil {
		if err := f.DeleteHook(calendarID, eventID); err != nil {
			return err
		}
	}
	if _, ok := f.calendars[calendarID][eventID]; !ok {
		return gcal.ErrNotFound
	}
	delete(f.calendars[calendarID], eventID)
	return nil
}

func (f *Fake) ListEvents(ctx context.Context, q gcal.ListQuery) (*gcal.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list", q.CalendarID)
	if f.ListHook != nil {
		if err := f.ListHook(q); err != nil {
			return nil, err
		}
	}

	if q.SyncToken != "" {
		if len(f.SyncPages) > 0 {
			page := f.SyncPages[0]
			f.SyncPages = f.SyncPages[1:]
			return page, nil
		}
		f.syncSeq++
		return &gcal.Page{NextSyncToken: "sync-" + strconv.Itoa(f.syncSeq)}, nil
	}

	ids := f.order[q.CalendarID]
	offset := 0
	if q.PageToken != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(q.PageToken, "p"))
		if err != nil {
			return nil, gcal.ErrTokenExpired
		}
		offset = n
	}
	size := int(q.PageSize)
	if size <= 0 {
		size = len(ids)
	}

	page := &gcal.Page{}
	end := offset + size
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[offset:end] {
		cp := *f.calendars[q.CalendarID][id]
		page.Events = append(page.Events, &cp)
	}
	if end < len(ids) {
		page.NextPageToken = "p" + strconv.Itoa(end)
	} else {
		f.syncSeq++
		page.NextSyncToken = "sync-" + strconv.Itoa(f.syncSeq)
	}
	return page, nil
}

func (f *Fake) Watch(ctx context.Context, calendarID, channelID, address string, expiration time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("watch", calendarID)
	if f.WatchErr != nil {
		return "", f.WatchErr
	}
	return "res-" + channelID, nil
}

func (f *Fake) StopWatch(ctx context.Context, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop", channelID)
	return nil
}

// Factory hands out a fixed API for every user.
type Factory struct {
	API gcal.API
	Err error
}

func (f *Factory) ClientFor(ctx context.Context, userID string) (gcal.API, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.API, nil
}
