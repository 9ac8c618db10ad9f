package gcal

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"
)

// client wraps one authenticated calendar/v3 service. All errors leave
// through translateError so callers only ever see the tagged set.
type client struct {
	svc *calendar.Service
}

func (c *client) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	ev, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}
	return fromProvider(ev), nil
}

func (c *client) InsertEvent(ctx context.Context, calendarID string, ev *Event) (*Event, error) {
	out, err := c.svc.Events.Insert(calendarID, toProvider(ev)).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}
	return fromProvider(out), nil
}

func (c *client) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *Event) (*Event, error) {
	out, err := c.svc.Events.Update(calendarID, eventID, toProvider(ev)).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}
	return fromProvider(out), nil
}

func (c *client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return translateError(err)
	}
	return nil
}

func (c *client) ListEvents(ctx context.Context, q ListQuery) (*Page, error) {
	call := c.svc.Events.List(q.CalendarID).Context(ctx).SingleEvents(true)
	if q.SyncToken != "" {
		// Incremental mode: the provider rejects window parameters
		// alongside a sync token.
		call = call.SyncToken(q.SyncToken)
		if q.PageToken != "" {
			call = call.PageToken(q.PageToken)
		}
	} else {
		call = call.
			TimeMin(q.TimeMin.Format(time.RFC3339)).
			TimeMax(q.TimeMax.Format(time.RFC3339)).
			MaxResults(q.PageSize).
			OrderBy("startTime")
		if q.PageToken != "" {
			call = call.PageToken(q.PageToken)
		}
	}
	res, err := call.Do()
	if err != nil {
		return nil, translateError(err)
	}
	page := &Page{
		NextPageToken: res.NextPageToken,
		NextSyncToken: res.NextSyncToken,
	}
	for _, item := range res.Items {
		page.Events = append(page.Events, fromProvider(item))
	}
	return page, nil
}

func (c *client) Watch(ctx context.Context, calendarID, channelID, address string, expiration time.Time) (string, error) {
	ch := &calendar.Channel{
		Id:         channelID,
		Type:       "web_hook",
		Address:    address,
		Expiration: expiration.UnixMilli(),
	}
	res, err := c.svc.Events.Watch(calendarID, ch).Context(ctx).Do()
	if err != nil {
		return "", translateError(err)
	}
	return res.ResourceId, nil
}

func (c *client) StopWatch(ctx context.Context, channelID, resourceID string) error {
	ch := &calendar.Channel{Id: channelID, ResourceId: resourceID}
	if err := c.svc.Channels.Stop(ch).Context(ctx).Do(); err != nil {
		return translateError(err)
	}
	return nil
}

func fromProvider(ev *calendar.Event) *Event {
	out := &Event{
		ID:           ev.Id,
		Status:       ev.Status,
		Summary:      ev.Summary,
		Description:  ev.Description,
		Location:     ev.Location,
		Transparency: ev.Transparency,
		Visibility:   ev.Visibility,
	}
	if ev.Start != nil {
		out.Start = EventTime{DateTime: ev.Start.DateTime, Date: ev.Start.Date, TimeZone: ev.Start.TimeZone}
	}
	if ev.End != nil {
		out.End = EventTime{DateTime: ev.End.DateTime, Date: ev.End.Date, TimeZone: ev.End.TimeZone}
	}
	if ev.ExtendedProperties != nil && len(ev.ExtendedProperties.Private) > 0 {
		out.Private = ev.ExtendedProperties.Private
	}
	return out
}

func toProvider(ev *Event) *calendar.Event {
	out := &calendar.Event{
		Summary:      ev.Summary,
		Description:  ev.Description,
		Location:     ev.Location,
		Transparency: ev.Transparency,
		Visibility:   ev.Visibility,
		Start:        &calendar.EventDateTime{DateTime: ev.Start.DateTime, Date: ev.Start.Date, TimeZone: ev.Start.TimeZone},
		End:          &calendar.EventDateTime{DateTime: ev.End.DateTime, Date: ev.End.Date, TimeZone: ev.End.TimeZone},
	}
	if len(ev.Private) > 0 {
		out.ExtendedProperties = &calendar.EventExtendedProperties{Private: ev.Private}
	}
	return out
}
