package partiful

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"eventsync/internal"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

const tokenResponse = `{"id_token":"fresh-token","user_id":"user-123","refresh_token":"rt"}`

func rsvpResponse(events ...map[string]any) string {
	res, _ := json.Marshal(map[string]any{
		"result": map[string]any{
			"data": map[string]any{"events": events},
		},
	})
	return string(res)
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.Client(), log.NewNop(), "fake-api-key", "fake-refresh-token", false)
	c.TokenURL = srv.URL + "/token"
	c.APIURL = srv.URL + "/getMyRsvps"
	return c, srv
}

func TestFetch(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "fake-api-key" {
			t.Errorf("token request missing api key")
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") != "fake-refresh-token" {
			t.Errorf("token request form = %v", r.PostForm)
		}
		fmt.Fprint(w, tokenResponse)
	})
	handler.HandleFunc("/getMyRsvps", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
			t.Errorf("Authorization = %q", got)
		}
		if key := r.Header.Get("Idempotency-Key"); !strings.HasPrefix(key, `"`) || len(key) < 30 {
			t.Errorf("Idempotency-Key = %q, want a quoted uuid", key)
		}
		fmt.Fprint(w, rsvpResponse(
			map[string]any{
				"id":        "abc123",
				"title":     "Rooftop Party",
				"location":  "Secret Rooftop",
				"startDate": "2026-04-18T19:00:00.000Z",
				"endDate":   "2026-04-18T23:00:00.000Z",
				"guest":     map[string]any{"status": "GOING"},
			},
			map[string]any{
				"id":        "def456",
				"title":     "Maybe Party",
				"startDate": "2026-04-20T20:00:00Z",
				"guest":     map[string]any{"status": "MAYBE"},
			},
			map[string]any{
				"id":    "nostart",
				"title": "Broken Listing",
			},
		))
	})

	c, _ := testClient(t, handler)
	events, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (listing without start dropped)", len(events))
	}

	going := events[0]
	if going.ID != "abc123" || !going.Confirmed {
		t.Errorf("GOING rsvp should be confirmed: %+v", going)
	}
	if going.URL != "https://partiful.com/e/abc123" {
		t.Errorf("URL = %q", going.URL)
	}
	wantStart := time.Date(2026, time.April, 18, 19, 0, 0, 0, time.UTC)
	if !going.StartsAt.Equal(wantStart) {
		t.Errorf("StartsAt = %v", going.StartsAt)
	}

	maybe := events[1]
	if maybe.Confirmed {
		t.Error("MAYBE rsvp should not be confirmed")
	}
	// Missing end defaults to three hours.
	if got := maybe.EndsAt.Sub(maybe.StartsAt); got != 3*time.Hour {
		t.Errorf("default duration = %v", got)
	}
}

func TestFetchRetriesOnExpiredToken(t *testing.T) {
	var rsvpCalls atomic.Int32
	handler := http.NewServeMux()
	handler.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tokenResponse)
	})
	handler.HandleFunc("/getMyRsvps", func(w http.ResponseWriter, r *http.Request) {
		if rsvpCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, rsvpResponse())
	})

	c, _ := testClient(t, handler)
	_, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := rsvpCalls.Load(); got != 2 {
		t.Errorf("rsvp endpoint called %d times, want 2 (401 then retry)", got)
	}
}

func TestFetchMissingCredentials(t *testing.T) {
	c := New(nil, log.NewNop(), "", "", false)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}

func TestFetchTokenRefreshFails(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	c, _ := testClient(t, handler)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}

func TestName(t *testing.T) {
	c := New(nil, log.NewNop(), "", "", false)
	if c.Name() != internal.SourcePartiful {
		t.Errorf("Name() = %q", c.Name())
	}
}
