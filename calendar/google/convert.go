package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"eventsync/internal"
	"eventsync/internal/reconcile"
)

func newRecord(calendarID string, item *calendar.Event) *reconcile.Record {
	rec := &reconcile.Record{
		RemoteID:    item.Id,
		CalendarID:  calendarID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		StartsAt:    parseEventTime(item.Start),
		EndsAt:      parseEventTime(item.End),
	}
	if item.Source != nil {
		rec.URL = item.Source.Url
	}
	if item.ExtendedProperties != nil {
		rec.Tag = item.ExtendedProperties.Private[tagProperty]
	}
	return rec
}

func newGoogleEvent(ev *internal.Event) *calendar.Event {
	gevent := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start: &calendar.EventDateTime{
			DateTime: ev.StartsAt.UTC().Format(time.RFC3339),
		},
		End: &calendar.EventDateTime{
			// The API requires an end; open-ended listings get the
			// model default.
			DateTime: ev.EffectiveEnd().UTC().Format(time.RFC3339),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{tagProperty: ev.Tag()},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}
	if ev.URL != "" {
		gevent.Source = &calendar.EventSource{
			Title: ev.Source.String(),
			Url:   ev.URL,
		}
	}
	return gevent
}

func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t
	}
	// All-day events carry a date only.
	t, _ := time.Parse("2006-01-02", dt.Date)
	return t
}
