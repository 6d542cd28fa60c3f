// Package eventbrite fetches events for a configured list of organizer
// pages. Event IDs are scraped from the server-rendered organizer page
// and resolved through the public destination-events API; recurring
// series are flattened into one record per occurrence.
package eventbrite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"eventsync/internal"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

const (
	apiURL           = "https://www.eventbrite.com/api/v3/destination/events/"
	organizerBaseURL = "https://www.eventbrite.com/o/"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.6478.127 Safari/537.36"

	defaultTimezone = "America/New_York"
)

var serverDataRe = regexp.MustCompile(`(?s)window\.__SERVER_DATA__\s*=\s*(\{.*?\});`)

type Client struct {
	// Base URLs are overridable for tests.
	APIURL       string
	OrganizerURL string

	httpClient   *http.Client
	logger       log.Logger
	organizerIDs []string
}

func New(httpClient *http.Client, logger log.Logger, organizerIDs []string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		APIURL:       apiURL,
		OrganizerURL: organizerBaseURL,
		httpClient:   httpClient,
		logger:       logger,
		organizerIDs: organizerIDs,
	}
}

func (c *Client) Name() internal.SourceName {
	return internal.SourceEventbrite
}

func (c *Client) Fetch(ctx context.Context) ([]internal.RawEvent, error) {
	if len(c.organizerIDs) == 0 {
		return nil, nil
	}

	var eventIDs []string
	for _, organizerID := range c.organizerIDs {
		ids, err := c.organizerEventIDs(ctx, organizerID)
		if err != nil {
			c.logger.Warnf(ctx, "eventbrite: organizer %s: %v", organizerID, err)
			continue
		}
		eventIDs = append(eventIDs, ids...)
	}
	if len(eventIDs) == 0 {
		return nil, nil
	}

	details, err := c.eventDetails(ctx, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: eventbrite: %v", source.ErrUnavailable, err)
	}

	var events []internal.RawEvent
	for _, detail := range details {
		converted, err := c.convert(detail)
		if err != nil {
			c.logger.Warnf(ctx, "eventbrite: skipping event %s: %v", detail.ID, err)
			continue
		}
		events = append(events, converted...)
	}
	return events, nil
}

type serverData struct {
	ViewData struct {
		Events struct {
			FutureEvents []struct {
				ID json.Number `json:"id"`
			} `json:"future_events"`
		} `json:"events"`
	} `json:"view_data"`
}

// organizerEventIDs scrapes the organizer page for its server-rendered
// JSON payload and pulls the future event IDs out of it.
func (c *Client) organizerEventIDs(ctx context.Context, organizerID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.OrganizerURL+organizerID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("organizer page returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	match := serverDataRe.FindSubmatch(body)
	if match == nil {
		return nil, fmt.Errorf("no __SERVER_DATA__ payload on page")
	}

	var data serverData
	if err := json.Unmarshal(match[1], &data); err != nil {
		return nil, fmt.Errorf("parsing __SERVER_DATA__: %w", err)
	}

	ids := make([]string, 0, len(data.ViewData.Events.FutureEvents))
	for _, ev := range data.ViewData.Events.FutureEvents {
		ids = append(ids, ev.ID.String())
	}
	return ids, nil
}

type eventDetail struct {
	ID       json.Number `json:"id"`
	Name     string      `json:"name"`
	Summary  string      `json:"summary"`
	URL      string      `json:"url"`
	Timezone string      `json:"timezone"`

	StartDate string `json:"start_date"`
	StartTime string `json:"start_time"`
	EndDate   string `json:"end_date"`
	EndTime   string `json:"end_time"`

	PrimaryVenue struct {
		Name    string `json:"name"`
		Address struct {
			LocalizedAddressDisplay string `json:"localized_address_display"`
		} `json:"address"`
	} `json:"primary_venue"`

	Series struct {
		NextDates []struct {
			ID    json.Number `json:"id"`
			Start string      `json:"start"`
			End   string      `json:"end"`
		} `json:"next_dates"`
	} `json:"series"`
}

func (c *Client) eventDetails(ctx context.Context, eventIDs []string) ([]eventDetail, error) {
	query := url.Values{
		"event_ids":             {strings.Join(eventIDs, ",")},
		"expand":                {"event_sales_status,image,primary_venue,saves,series,ticket_availability,primary_organizer"},
		"page_size":             {"50"},
		"include_parent_events": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Referer", c.OrganizerURL+c.organizerIDs[0])

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("destination API returned %d", res.StatusCode)
	}

	var parsed struct {
		Events []eventDetail `json:"events"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding destination API response: %w", err)
	}
	return parsed.Events, nil
}

func (c *Client) convert(detail eventDetail) ([]internal.RawEvent, error) {
	location := detail.PrimaryVenue.Name
	if addr := detail.PrimaryVenue.Address.LocalizedAddressDisplay; addr != "" {
		if location != "" {
			location += ", "
		}
		location += addr
	}

	base := internal.RawEvent{
		Source:      internal.SourceEventbrite,
		Title:       detail.Name,
		Description: detail.Summary,
		Location:    location,
		URL:         detail.URL,
		// Ticketing pages say nothing about the user's attendance.
		Confirmed: false,
	}

	// A series is flattened to one record per occurrence, keyed by the
	// occurrence ID so each date reconciles independently.
	if len(detail.Series.NextDates) > 0 {
		events := make([]internal.RawEvent, 0, len(detail.Series.NextDates))
		for _, date := range detail.Series.NextDates {
			startsAt, err := time.Parse(time.RFC3339, date.Start)
			if err != nil {
				return nil, fmt.Errorf("parsing series start %q: %w", date.Start, err)
			}
			endsAt, err := time.Parse(time.RFC3339, date.End)
			if err != nil {
				return nil, fmt.Errorf("parsing series end %q: %w", date.End, err)
			}
			occurrence := base
			occurrence.ID = date.ID.String()
			occurrence.StartsAt = startsAt
			occurrence.EndsAt = endsAt
			events = append(events, occurrence)
		}
		return events, nil
	}

	tz := detail.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	startsAt, err := time.ParseInLocation("2006-01-02T15:04", detail.StartDate+"T"+detail.StartTime, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing start %s %s: %w", detail.StartDate, detail.StartTime, err)
	}
	endsAt, err := time.ParseInLocation("2006-01-02T15:04", detail.EndDate+"T"+detail.EndTime, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing end %s %s: %w", detail.EndDate, detail.EndTime, err)
	}

	base.ID = detail.ID.String()
	base.StartsAt = startsAt.UTC()
	base.EndsAt = endsAt.UTC()
	return []internal.RawEvent{base}, nil
}
