// Package meetup fetches upcoming events for a configured list of
// meetup.com groups through the site's persisted GraphQL query.
package meetup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"eventsync/internal"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

const (
	gqlURL    = "https://www.meetup.com/gql2"
	queryHash = "e1a588d73cb23d2cff73d5f6afa677d26e1e905835d084afb93ae5c456cc4812"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.6478.127 Safari/537.36"

	// defaultDuration applies when a listing carries no duration.
	defaultDuration = 2 * time.Hour
	pageSize        = 50
)

type Client struct {
	// GraphQLURL is overridable for tests.
	GraphQLURL string

	httpClient *http.Client
	logger     log.Logger
	groups     []string
}

func New(httpClient *http.Client, logger log.Logger, groups []string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		GraphQLURL: gqlURL,
		httpClient: httpClient,
		logger:     logger,
		groups:     groups,
	}
}

func (c *Client) Name() internal.SourceName {
	return internal.SourceMeetup
}

// Fetch queries each configured group. A failing group is logged and
// skipped; the source only fails as a whole when every group fails.
func (c *Client) Fetch(ctx context.Context) ([]internal.RawEvent, error) {
	if len(c.groups) == 0 {
		return nil, nil
	}

	var (
		events []internal.RawEvent
		failed int
	)
	for _, group := range c.groups {
		groupEvents, err := c.fetchGroup(ctx, group)
		if err != nil {
			c.logger.Warnf(ctx, "meetup: group %s: %v", group, err)
			failed++
			continue
		}
		events = append(events, groupEvents...)
	}
	if failed == len(c.groups) {
		return nil, fmt.Errorf("%w: meetup: all %d groups failed", source.ErrUnavailable, failed)
	}
	return events, nil
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data struct {
		GroupByURLName struct {
			Events struct {
				Edges []struct {
					Node eventNode `json:"node"`
				} `json:"edges"`
			} `json:"events"`
		} `json:"groupByUrlname"`
	} `json:"data"`
}

type eventNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DateTime    string `json:"dateTime"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	EventURL    string `json:"eventUrl"`
	Venue       struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		City    string `json:"city"`
		State   string `json:"state"`
	} `json:"venue"`
}

func (c *Client) fetchGroup(ctx context.Context, group string) ([]internal.RawEvent, error) {
	body, err := json.Marshal(gqlRequest{
		OperationName: "getUpcomingGroupEvents",
		Variables: map[string]any{
			"urlname":       group,
			"afterDateTime": time.Now().UTC().Format(time.RFC3339),
			"first":         pageSize,
		},
		Extensions: map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": queryHash,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphql request returned %d", res.StatusCode)
	}

	var parsed gqlResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	events := make([]internal.RawEvent, 0, len(parsed.Data.GroupByURLName.Events.Edges))
	for _, edge := range parsed.Data.GroupByURLName.Events.Edges {
		ev, err := c.convert(edge.Node)
		if err != nil {
			c.logger.Warnf(ctx, "meetup: group %s: skipping event %s: %v", group, edge.Node.ID, err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) convert(node eventNode) (internal.RawEvent, error) {
	startsAt, err := time.Parse(time.RFC3339, node.DateTime)
	if err != nil {
		return internal.RawEvent{}, fmt.Errorf("parsing start time %q: %w", node.DateTime, err)
	}

	duration := defaultDuration
	if node.Duration > 0 {
		duration = time.Duration(node.Duration) * time.Minute
	}

	var location string
	for _, part := range []string{node.Venue.Name, node.Venue.Address, node.Venue.City, node.Venue.State} {
		if part == "" {
			continue
		}
		if location != "" {
			location += ", "
		}
		location += part
	}

	return internal.RawEvent{
		Source:      internal.SourceMeetup,
		ID:          node.ID,
		Title:       node.Title,
		Description: node.Description,
		Location:    location,
		URL:         node.EventURL,
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(duration),
		// Group listings carry no attendance signal.
		Confirmed: false,
	}, nil
}
