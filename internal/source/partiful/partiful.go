// Package partiful fetches the authenticated user's RSVPs. Partiful
// has no public API; access rides on the web app's Firebase session,
// kept alive by exchanging a long-lived refresh token for an id token
// before each fetch. An event the user marked GOING is confirmed.
package partiful

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventsync/internal"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

const (
	apiURL         = "https://api.partiful.com/getMyRsvps"
	tokenURL       = "https://securetoken.googleapis.com/v1/token"
	firebaseAppID  = "1:939741910890:web:5cca435c4b26209b8a7713"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.6478.127 Safari/537.36"
	eventURLPrefix = "https://partiful.com/e/"

	// defaultDuration applies when a listing has no end time.
	defaultDuration = 3 * time.Hour
)

type Client struct {
	// Endpoints are overridable for tests.
	APIURL   string
	TokenURL string

	httpClient   *http.Client
	logger       log.Logger
	apiKey       string
	refreshToken string
	useICS       bool

	idToken string
	userID  string
}

func New(httpClient *http.Client, logger log.Logger, apiKey, refreshToken string, useICS bool) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		APIURL:       apiURL,
		TokenURL:     tokenURL,
		httpClient:   httpClient,
		logger:       logger,
		apiKey:       apiKey,
		refreshToken: refreshToken,
		useICS:       useICS,
	}
}

func (c *Client) Name() internal.SourceName {
	return internal.SourcePartiful
}

func (c *Client) Fetch(ctx context.Context) ([]internal.RawEvent, error) {
	if c.apiKey == "" || c.refreshToken == "" {
		return nil, fmt.Errorf("%w: partiful: missing api key or refresh token", source.ErrUnavailable)
	}
	if err := c.refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: partiful: %v", source.ErrUnavailable, err)
	}

	rsvps, err := c.myRsvps(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: partiful: %v", source.ErrUnavailable, err)
	}

	var events []internal.RawEvent
	for _, rsvp := range rsvps {
		if c.useICS && rsvp.CalendarFile != "" {
			ics, err := c.fetchICS(ctx, rsvp)
			if err != nil {
				c.logger.Warnf(ctx, "partiful: event %s: ics fetch failed, using api fields: %v", rsvp.ID, err)
			} else {
				events = append(events, ics...)
				continue
			}
		}
		ev, err := c.convert(rsvp)
		if err != nil {
			c.logger.Warnf(ctx, "partiful: skipping event %s: %v", rsvp.ID, err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// refresh exchanges the stored refresh token for a fresh id token.
func (c *Client) refresh(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.TokenURL+"?key="+url.QueryEscape(c.apiKey),
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Firebase-Gmpid", firebaseAppID)
	req.Header.Set("X-Client-Version", "Chrome/JsCore/11.2.0/FirebaseCore-web")
	req.Header.Set("Origin", "https://partiful.com")
	req.Header.Set("Referer", "https://partiful.com/")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh returned %d", res.StatusCode)
	}

	var token struct {
		IDToken string `json:"id_token"`
		UserID  string `json:"user_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&token); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	c.idToken = token.IDToken
	c.userID = token.UserID
	return nil
}

type rsvpEvent struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	CalendarFile string `json:"calendarFile"`
	Guest        struct {
		Status string `json:"status"`
	} `json:"guest"`
}

// myRsvps calls the RSVP listing endpoint, retrying once through a
// token refresh on 401.
func (c *Client) myRsvps(ctx context.Context) ([]rsvpEvent, error) {
	res, err := c.doRsvps(ctx)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized {
		res.Body.Close()
		c.logger.Info(ctx, "partiful: token expired, refreshing")
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		if res, err = c.doRsvps(ctx); err != nil {
			return nil, err
		}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rsvp request returned %d", res.StatusCode)
	}

	var parsed struct {
		Result struct {
			Data struct {
				Events []rsvpEvent `json:"events"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding rsvp response: %w", err)
	}
	return parsed.Result.Data.Events, nil
}

func (c *Client) doRsvps(ctx context.Context) (*http.Response, error) {
	body, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"params": map[string]any{},
			"userId": c.userID,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.idToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", "https://partiful.com")
	req.Header.Set("Referer", "https://partiful.com/")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%q", uuid.NewString()))

	return c.httpClient.Do(req)
}

func (c *Client) convert(rsvp rsvpEvent) (internal.RawEvent, error) {
	if rsvp.StartDate == "" {
		return internal.RawEvent{}, fmt.Errorf("no start date")
	}
	startsAt, err := parseTime(rsvp.StartDate)
	if err != nil {
		return internal.RawEvent{}, fmt.Errorf("parsing start date %q: %w", rsvp.StartDate, err)
	}

	endsAt := startsAt.Add(defaultDuration)
	if rsvp.EndDate != "" {
		if parsed, err := parseTime(rsvp.EndDate); err == nil {
			endsAt = parsed
		}
	}

	return internal.RawEvent{
		Source:      internal.SourcePartiful,
		ID:          rsvp.ID,
		Title:       rsvp.Title,
		Description: rsvp.Description,
		Location:    rsvp.Location,
		URL:         eventURLPrefix + rsvp.ID,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Confirmed:   rsvp.Guest.Status == "GOING",
	}, nil
}

// parseTime accepts RFC 3339 with or without sub-second precision and
// treats a missing zone as UTC.
func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format")
}
