// Package google implements the calendar store adapter on the Google
// Calendar API. Each record created by this system carries its source
// tag in the event's private extended properties; records without the
// tag belong to the calendar owner and are invisible to reconciliation
// deletes.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"eventsync/internal"
	"eventsync/internal/reconcile"
	"eventsync/pkg/log"
)

// tagProperty is the private extended property holding the source tag.
const tagProperty = "eventsyncTag"

// pastWindow bounds how far back List looks. Records older than this
// are out of reconciliation scope, which keeps calendar history intact.
const pastWindow = 24 * time.Hour

// The calendar API allows bursts but sustained writes get throttled;
// pace calls instead of sleeping between them.
var apiLimit = rate.Limit(5)

type Client struct {
	oauthCfg *oauth2.Config
	svc      *calendar.Service
	limiter  *rate.Limiter
	logger   log.Logger

	// Horizon bounds how far ahead List looks; events beyond it are
	// out of scope for this run.
	Horizon time.Duration
}

// NewClient parses OAuth application credentials. Connect must be
// called with an account token before the client can touch calendars.
func NewClient(credJSON []byte, logger log.Logger) (*Client, error) {
	oauthCfg, err := googleoauth.ConfigFromJSON(credJSON, calendar.CalendarEventsScope, oauth2api.UserinfoEmailScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %w", err)
	}
	return &Client{
		oauthCfg: oauthCfg,
		limiter:  rate.NewLimiter(apiLimit, 1),
		logger:   logger,
		Horizon:  90 * 24 * time.Hour,
	}, nil
}

// Connect builds the calendar service for the stored account token.
func (c *Client) Connect(ctx context.Context, tokenJSON string) error {
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(tokenJSON), &tok); err != nil {
		return fmt.Errorf("google: parsing account token: %w", err)
	}
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(c.oauthCfg.Client(ctx, &tok)))
	if err != nil {
		return fmt.Errorf("google: creating calendar service: %w", err)
	}
	c.svc = svc
	return nil
}

// List reads every event in the reconciliation window, one page at a
// time.
func (c *Client) List(ctx context.Context, calendarID string) ([]*reconcile.Record, error) {
	now := time.Now().UTC()
	call := c.svc.Events.List(calendarID).
		Context(ctx).
		SingleEvents(true).
		ShowDeleted(false).
		TimeMin(now.Add(-pastWindow).Format(time.RFC3339)).
		TimeMax(now.Add(c.Horizon).Format(time.RFC3339))

	var (
		records       []*reconcile.Record
		nextPageToken string
	)
	for {
		events, err := do(ctx, c, func() (*calendar.Events, error) {
			return call.PageToken(nextPageToken).Do()
		})
		if err != nil {
			return nil, fmt.Errorf("google: listing %s: %w", calendarID, err)
		}

		for _, item := range events.Items {
			records = append(records, newRecord(calendarID, item))
		}
		nextPageToken = events.NextPageToken
		if nextPageToken == "" {
			break
		}
	}
	return records, nil
}

func (c *Client) Create(ctx context.Context, calendarID string, ev *internal.Event) (*reconcile.Record, error) {
	created, err := do(ctx, c, func() (*calendar.Event, error) {
		return c.svc.Events.Insert(calendarID, newGoogleEvent(ev)).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("google: creating event %s: %w", ev.Tag(), err)
	}
	return newRecord(calendarID, created), nil
}

func (c *Client) Update(ctx context.Context, rec *reconcile.Record, ev *internal.Event) (*reconcile.Record, error) {
	updated, err := do(ctx, c, func() (*calendar.Event, error) {
		return c.svc.Events.Update(rec.CalendarID, rec.RemoteID, newGoogleEvent(ev)).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("google: updating event %s: %w", ev.Tag(), err)
	}
	return newRecord(rec.CalendarID, updated), nil
}

func (c *Client) Delete(ctx context.Context, rec *reconcile.Record) error {
	_, err := do(ctx, c, func() (struct{}, error) {
		err := c.svc.Events.Delete(rec.CalendarID, rec.RemoteID).Context(ctx).Do()
		if alreadyDeleted(err) {
			err = nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("google: deleting event %s: %w", rec.RemoteID, err)
	}
	return nil
}

// do paces a call through the limiter and retries rate-limit rejections.
func do[T any](ctx context.Context, c *Client, call func() (T, error)) (T, error) {
	var zero T
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		res, err := call()
		if err == nil {
			return res, nil
		}
		if !shouldRetry(err) {
			return zero, err
		}
		c.logger.Warnf(ctx, "google: rate limited, retrying")
	}
}

// Login runs the browser OAuth flow with a local callback server and
// returns the account token.
func (c *Client) Login(ctx context.Context, prompt func(authURL string)) (*oauth2.Token, error) {
	return login(ctx, c.oauthCfg, prompt)
}

// Email resolves the address of the account a token belongs to.
func (c *Client) Email(ctx context.Context, token *oauth2.Token) (string, error) {
	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(c.oauthCfg.Client(ctx, token)))
	if err != nil {
		return "", err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return info.Email, nil
}

func shouldRetry(err error) bool {
	return errIsReason(err, "rateLimitExceeded")
}

func alreadyDeleted(err error) bool {
	return errIsReason(err, "deleted") || errIsReason(err, "notFound")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	for _, e := range gErr.Errors {
		if e.Reason == reason {
			return true
		}
	}
	return false
}
