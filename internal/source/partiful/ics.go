package partiful

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	ical "github.com/arran4/golang-ical"

	"eventsync/internal"
)

// fetchICS downloads the event's calendar file and converts its
// VEVENTs. Partiful attaches one per invite; the API event ID stays the
// source identifier so both fetch paths produce the same tag.
func (c *Client) fetchICS(ctx context.Context, rsvp rsvpEvent) ([]internal.RawEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rsvp.CalendarFile, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar file returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar file: %w", err)
	}

	events := make([]internal.RawEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := c.convertVEvent(rsvp, ve)
		if err != nil {
			c.logger.Warnf(ctx, "partiful: event %s: skipping vevent: %v", rsvp.ID, err)
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("calendar file had no usable events")
	}
	return events, nil
}

func (c *Client) convertVEvent(rsvp rsvpEvent, ve *ical.VEvent) (internal.RawEvent, error) {
	startsAt, err := ve.GetStartAt()
	if err != nil {
		return internal.RawEvent{}, fmt.Errorf("missing DTSTART: %w", err)
	}

	ev := internal.RawEvent{
		Source:    internal.SourcePartiful,
		ID:        rsvp.ID,
		URL:       eventURLPrefix + rsvp.ID,
		StartsAt:  startsAt,
		Confirmed: rsvp.Guest.Status == "GOING",
	}
	if endsAt, err := ve.GetEndAt(); err == nil {
		ev.EndsAt = endsAt
	} else {
		ev.EndsAt = startsAt.Add(defaultDuration)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if ev.Title == "" {
		ev.Title = rsvp.Title
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil && p.Value != "" {
		ev.URL = p.Value
	}
	return ev, nil
}
