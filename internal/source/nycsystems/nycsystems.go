// Package nycsystems scrapes the NYC Systems talk schedule. The site
// publishes a fixed table of dates and speakers; talks are at a fixed
// venue and time, and a talk with announced speakers is confirmed.
package nycsystems

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"eventsync/internal"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

const (
	defaultBaseURL = "https://nycsystems.xyz"

	location = "Trail of Bits Office, New York"

	description = `NYC Systems is an independent tech talk series focused on systems programming. It is entirely community-run, not affiliated with any company.

Topics include:
• Compilers, parsers, virtual machines, IDEs, profiling
• Databases, storage, networking, distributed systems
• Large scale infrastructure, low latency, high availability services
• Formal methods, verification
• Browsers, kernel development, security

Previous talks available at: https://youtube.com/@NYCSystems`

	startHour   = 18
	startMinute = 30
	duration    = 2 * time.Hour
)

type Client struct {
	// BaseURL is overridable for tests.
	BaseURL string

	httpClient *http.Client
	logger     log.Logger
	loc        *time.Location
	now        func() time.Time
}

func New(httpClient *http.Client, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Client{
		BaseURL:    defaultBaseURL,
		httpClient: httpClient,
		logger:     logger,
		loc:        loc,
		now:        time.Now,
	}
}

func (c *Client) Name() internal.SourceName {
	return internal.SourceNYCSystems
}

func (c *Client) Fetch(ctx context.Context) ([]internal.RawEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: nycsystems: %v", source.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: nycsystems: status %d", source.ErrUnavailable, res.StatusCode)
	}

	doc, err := html.Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: nycsystems: parsing page: %v", source.ErrUnavailable, err)
	}

	table := findFirst(doc, "table")
	if table == nil {
		return nil, fmt.Errorf("%w: nycsystems: no schedule table on page", source.ErrUnavailable)
	}

	var events []internal.RawEvent
	rows := findAll(table, "tr")
	for i, row := range rows {
		if i == 0 {
			// header
			continue
		}
		ev, ok := c.parseRow(ctx, row)
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (c *Client) parseRow(ctx context.Context, row *html.Node) (internal.RawEvent, bool) {
	cells := findAll(row, "td")
	if len(cells) < 2 {
		return internal.RawEvent{}, false
	}

	dateText := strings.TrimSpace(text(cells[0]))
	speakers := strings.TrimSpace(text(cells[1]))

	startsAt, err := c.parseDate(dateText)
	if err != nil {
		c.logger.Warnf(ctx, "nycsystems: skipping row %q: %v", dateText, err)
		return internal.RawEvent{}, false
	}

	title := "NYC Systems Talk - " + speakers
	if strings.EqualFold(speakers, "tbd") {
		title = "NYC Systems Talk - " + dateText
	}

	url := c.BaseURL
	if link := findFirst(cells[0], "a"); link != nil {
		if href := attr(link, "href"); href != "" {
			url = c.BaseURL + href
		}
	}

	return internal.RawEvent{
		Source:      internal.SourceNYCSystems,
		ID:          "nycsystems_" + startsAt.UTC().Format("20060102"),
		Title:       title,
		Description: description,
		Location:    location,
		URL:         url,
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(duration),
		Confirmed:   !strings.EqualFold(speakers, "tbd"),
	}, true
}

// parseDate turns a "Month DD" cell into the talk start instant. The
// schedule omits the year, so the nearest future occurrence wins: a
// date more than two months gone is taken to mean next year.
func (c *Client) parseDate(dateText string) (time.Time, error) {
	parsed, err := time.ParseInLocation("January 2", dateText, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", dateText, err)
	}

	now := c.now().In(c.loc)
	startsAt := time.Date(now.Year(), parsed.Month(), parsed.Day(), startHour, startMinute, 0, 0, c.loc)
	if startsAt.Before(now.AddDate(0, -2, 0)) {
		startsAt = startsAt.AddDate(1, 0, 0)
	}
	return startsAt.UTC(), nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child)
	}
	return out
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
