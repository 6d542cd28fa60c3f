package google

import (
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"eventsync/internal"
)

func TestNewGoogleEvent(t *testing.T) {
	ev := internal.Event{
		Source:      internal.SourceMeetup,
		ID:          "m1",
		Title:       "Go Meetup",
		Description: "talks and pizza",
		Location:    "11 Broadway",
		URL:         "https://www.meetup.com/gonyc/events/m1/",
		StartsAt:    time.Date(2026, time.April, 15, 22, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2026, time.April, 16, 0, 0, 0, 0, time.UTC),
	}

	gevent := newGoogleEvent(&ev)
	if gevent.Summary != "Go Meetup" || gevent.Location != "11 Broadway" {
		t.Errorf("event = %+v", gevent)
	}
	if gevent.Start.DateTime != "2026-04-15T22:00:00Z" {
		t.Errorf("Start = %q", gevent.Start.DateTime)
	}
	if gevent.End.DateTime != "2026-04-16T00:00:00Z" {
		t.Errorf("End = %q", gevent.End.DateTime)
	}
	if got := gevent.ExtendedProperties.Private[tagProperty]; got != "meetup/m1" {
		t.Errorf("tag property = %q", got)
	}
	if gevent.Source == nil || gevent.Source.Url != ev.URL {
		t.Errorf("Source = %+v", gevent.Source)
	}
}

func TestNewGoogleEventOpenEnded(t *testing.T) {
	ev := internal.Event{
		Source:   internal.SourcePartiful,
		ID:       "p1",
		Title:    "Party",
		StartsAt: time.Date(2026, time.April, 18, 23, 0, 0, 0, time.UTC),
	}

	gevent := newGoogleEvent(&ev)
	if gevent.End.DateTime != "2026-04-19T00:00:00Z" {
		t.Errorf("End = %q, want an hour after start", gevent.End.DateTime)
	}
	if gevent.Source != nil {
		t.Errorf("event without url should carry no source block")
	}
}

func TestNewRecord(t *testing.T) {
	item := &calendar.Event{
		Id:          "remote-1",
		Summary:     "Go Meetup",
		Description: "talks and pizza",
		Location:    "11 Broadway",
		Start:       &calendar.EventDateTime{DateTime: "2026-04-15T22:00:00Z"},
		End:         &calendar.EventDateTime{DateTime: "2026-04-16T00:00:00Z"},
		Source:      &calendar.EventSource{Title: "meetup", Url: "https://example.com/e/1"},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{tagProperty: "meetup/m1"},
		},
	}

	rec := newRecord("cal-1", item)
	if rec.RemoteID != "remote-1" || rec.CalendarID != "cal-1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Tag != "meetup/m1" {
		t.Errorf("Tag = %q", rec.Tag)
	}
	if rec.URL != "https://example.com/e/1" {
		t.Errorf("URL = %q", rec.URL)
	}
	want := time.Date(2026, time.April, 15, 22, 0, 0, 0, time.UTC)
	if !rec.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %v", rec.StartsAt)
	}
}

func TestNewRecordForeign(t *testing.T) {
	// Records created by hand in the calendar have no tag and must
	// come through with Tag empty so reconciliation leaves them alone.
	item := &calendar.Event{
		Id:      "remote-2",
		Summary: "Dentist",
		Start:   &calendar.EventDateTime{Date: "2026-04-20"},
		End:     &calendar.EventDateTime{Date: "2026-04-21"},
	}

	rec := newRecord("cal-1", item)
	if rec.Tag != "" {
		t.Errorf("Tag = %q, want empty", rec.Tag)
	}
	want := time.Date(2026, time.April, 20, 0, 0, 0, 0, time.UTC)
	if !rec.StartsAt.Equal(want) {
		t.Errorf("all-day StartsAt = %v", rec.StartsAt)
	}
}

func TestRoundTrip(t *testing.T) {
	ev := internal.Event{
		Source:      internal.SourceEventbrite,
		ID:          "e1",
		Title:       "Tech & Wine",
		Description: "drinks",
		Location:    "Loft 39",
		URL:         "https://example.com/e/e1",
		StartsAt:    time.Date(2026, time.April, 15, 22, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2026, time.April, 16, 1, 0, 0, 0, time.UTC),
	}

	rec := newRecord("cal-1", newGoogleEvent(&ev))
	if rec.Tag != ev.Tag() || rec.Title != ev.Title || rec.URL != ev.URL {
		t.Errorf("round trip lost fields: %+v", rec)
	}
	if !rec.StartsAt.Equal(ev.StartsAt) || !rec.EndsAt.Equal(ev.EndsAt) {
		t.Errorf("round trip changed times: %v-%v", rec.StartsAt, rec.EndsAt)
	}
}
