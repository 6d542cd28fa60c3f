package normalize

import (
	"errors"
	"testing"
	"time"

	"eventsync/internal"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

var testOpts = Options{
	Horizon:   90 * 24 * time.Hour,
	PastGrace: time.Hour,
}

func validRaw() internal.RawEvent {
	return internal.RawEvent{
		Source:   internal.SourceMeetup,
		ID:       "evt-1",
		Title:    "Go Meetup",
		StartsAt: testNow.Add(48 * time.Hour),
	}
}

func TestRecord(t *testing.T) {
	ev, err := Record(validRaw(), testNow, testOpts)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ev.Tag() != "meetup/evt-1" {
		t.Errorf("Tag() = %q, want %q", ev.Tag(), "meetup/evt-1")
	}
	if len(ev.Members) != 1 || ev.Members[0].Tag() != "meetup/evt-1" {
		t.Errorf("Members = %v, want the event's own ref", ev.Members)
	}
}

func TestRecordSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*internal.RawEvent)
	}{
		{"missing id", func(r *internal.RawEvent) { r.ID = "" }},
		{"missing start", func(r *internal.RawEvent) { r.StartsAt = time.Time{} }},
		{"past beyond grace", func(r *internal.RawEvent) { r.StartsAt = testNow.Add(-2 * time.Hour) }},
		{"beyond horizon", func(r *internal.RawEvent) { r.StartsAt = testNow.Add(91 * 24 * time.Hour) }},
		{"empty title", func(r *internal.RawEvent) { r.Title = " \n\t " }},
		{"ends before start", func(r *internal.RawEvent) { r.EndsAt = r.StartsAt.Add(-time.Minute) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(&raw)
			_, err := Record(raw, testNow, testOpts)
			if !errors.Is(err, ErrSkipRecord) {
				t.Errorf("Record() error = %v, want ErrSkipRecord", err)
			}
		})
	}
}

func TestRecordBoundaries(t *testing.T) {
	// Just inside the grace window and just inside the horizon both
	// survive.
	raw := validRaw()
	raw.StartsAt = testNow.Add(-59 * time.Minute)
	if _, err := Record(raw, testNow, testOpts); err != nil {
		t.Errorf("within past grace: error = %v", err)
	}

	raw = validRaw()
	raw.StartsAt = testNow.Add(89 * 24 * time.Hour)
	if _, err := Record(raw, testNow, testOpts); err != nil {
		t.Errorf("within horizon: error = %v", err)
	}
}

func TestRecordCollapsesWhitespace(t *testing.T) {
	raw := validRaw()
	raw.Title = "  Go\n\tMeetup  "
	raw.Description = "talks \n and   pizza"
	raw.Location = " 123  Main St "
	raw.URL = " https://example.com/e/1 "

	ev, err := Record(raw, testNow, testOpts)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ev.Title != "Go Meetup" {
		t.Errorf("Title = %q", ev.Title)
	}
	if ev.Description != "talks and pizza" {
		t.Errorf("Description = %q", ev.Description)
	}
	if ev.Location != "123 Main St" {
		t.Errorf("Location = %q", ev.Location)
	}
	if ev.URL != "https://example.com/e/1" {
		t.Errorf("URL = %q", ev.URL)
	}
}

func TestBatch(t *testing.T) {
	bad := validRaw()
	bad.Title = ""
	raws := []internal.RawEvent{validRaw(), bad, validRaw()}

	events, skipped := Batch(raws, testNow, testOpts)
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}
