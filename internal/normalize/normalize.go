// Package normalize turns raw source listings into canonical events,
// dropping records that cannot be represented. Normalization is pure:
// a malformed record is skipped, never fatal to the batch.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"eventsync/internal"
)

// ErrSkipRecord marks a record rejected by normalization. Callers count
// these; they do not propagate.
var ErrSkipRecord = errors.New("record skipped")

type Options struct {
	// Horizon bounds how far into the future events are accepted.
	Horizon time.Duration
	// PastGrace keeps events that started less than this long ago, so
	// an in-progress event does not disappear mid-way.
	PastGrace time.Duration
}

// Record normalizes one raw listing.
func Record(raw internal.RawEvent, now time.Time, opts Options) (internal.Event, error) {
	if raw.ID == "" {
		return internal.Event{}, fmt.Errorf("%w: missing source id", ErrSkipRecord)
	}
	if raw.StartsAt.IsZero() {
		return internal.Event{}, fmt.Errorf("%w: missing start time", ErrSkipRecord)
	}
	if raw.StartsAt.Before(now.Add(-opts.PastGrace)) {
		return internal.Event{}, fmt.Errorf("%w: starts in the past", ErrSkipRecord)
	}
	if raw.StartsAt.After(now.Add(opts.Horizon)) {
		return internal.Event{}, fmt.Errorf("%w: beyond horizon", ErrSkipRecord)
	}

	title := CollapseWhitespace(raw.Title)
	if title == "" {
		return internal.Event{}, fmt.Errorf("%w: empty title", ErrSkipRecord)
	}

	end := raw.EndsAt
	if !end.IsZero() && end.Before(raw.StartsAt) {
		return internal.Event{}, fmt.Errorf("%w: ends before it starts", ErrSkipRecord)
	}

	ev := internal.Event{
		Source:      raw.Source,
		ID:          raw.ID,
		Title:       title,
		Description: CollapseWhitespace(raw.Description),
		Location:    CollapseWhitespace(raw.Location),
		URL:         strings.TrimSpace(raw.URL),
		StartsAt:    raw.StartsAt,
		EndsAt:      end,
		Confirmed:   raw.Confirmed,
	}
	ev.AddMembers(ev.Ref())
	return ev, nil
}

// Batch normalizes a fetched batch, returning the surviving events and
// the number of records skipped.
func Batch(raws []internal.RawEvent, now time.Time, opts Options) ([]internal.Event, int) {
	events := make([]internal.Event, 0, len(raws))
	var skipped int
	for _, raw := range raws {
		ev, err := Record(raw, now, opts)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// CollapseWhitespace trims and squeezes runs of whitespace to single
// spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
