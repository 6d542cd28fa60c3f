package eventbrite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventsync/internal"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

const organizerPage = `<!DOCTYPE html>
<html><head><script>
window.__SERVER_DATA__ = {"view_data":{"events":{"future_events":[{"id":1234567890123},{"id":1234567890456}]}}};
window.__OTHER__ = {};
</script></head><body></body></html>`

func testClient(t *testing.T, handler http.Handler, organizerIDs ...string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.Client(), log.NewNop(), organizerIDs)
	c.OrganizerURL = srv.URL + "/o/"
	c.APIURL = srv.URL + "/api/v3/destination/events/"
	return c
}

func TestFetch(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/o/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(organizerPage))
	})
	handler.HandleFunc("/api/v3/destination/events/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("event_ids"); got != "1234567890123,1234567890456" {
			t.Errorf("event_ids = %q", got)
		}
		fmt.Fprint(w, `{"events":[
			{
				"id":"1234567890123",
				"name":"Tech & Wine",
				"summary":"Networking drinks",
				"url":"https://www.eventbrite.com/e/tech-wine-tickets-1234567890123",
				"timezone":"America/New_York",
				"start_date":"2026-04-15","start_time":"18:00",
				"end_date":"2026-04-15","end_time":"21:00",
				"primary_venue":{"name":"Loft 39","address":{"localized_address_display":"39 W 38th St, New York, NY"}}
			},
			{
				"id":"1234567890456",
				"name":"Weekly Run Club",
				"url":"https://www.eventbrite.com/e/run-club-tickets-1234567890456",
				"series":{"next_dates":[
					{"id":"9990001","start":"2026-04-12T09:00:00-04:00","end":"2026-04-12T10:00:00-04:00"},
					{"id":"9990002","start":"2026-04-19T09:00:00-04:00","end":"2026-04-19T10:00:00-04:00"}
				]}
			}
		]}`)
	})

	c := testClient(t, handler, "my-organizer-12345")
	events, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (single + two occurrences)", len(events))
	}

	single := events[0]
	if single.ID != "1234567890123" || single.Title != "Tech & Wine" {
		t.Errorf("single event = %+v", single)
	}
	if single.Location != "Loft 39, 39 W 38th St, New York, NY" {
		t.Errorf("Location = %q", single.Location)
	}
	loc, _ := time.LoadLocation("America/New_York")
	wantStart := time.Date(2026, time.April, 15, 18, 0, 0, 0, loc)
	if !single.StartsAt.Equal(wantStart) {
		t.Errorf("StartsAt = %v, want %v", single.StartsAt, wantStart)
	}
	if single.Confirmed {
		t.Error("ticketing listings are never confirmed")
	}

	// Series occurrences carry their own IDs so each date reconciles
	// on its own tag.
	if events[1].ID != "9990001" || events[2].ID != "9990002" {
		t.Errorf("occurrence IDs = %q, %q", events[1].ID, events[2].ID)
	}
	if events[1].Title != "Weekly Run Club" || events[2].Title != "Weekly Run Club" {
		t.Errorf("occurrences should share the series title")
	}
	if got := events[1].EndsAt.Sub(events[1].StartsAt); got != time.Hour {
		t.Errorf("occurrence duration = %v", got)
	}
}

func TestFetchOrganizerPageBroken(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/o/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no payload here</body></html>`))
	})

	c := testClient(t, handler, "my-organizer-12345")
	events, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events from a page without server data", len(events))
	}
}

func TestFetchAPIFailure(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/o/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(organizerPage))
	})
	handler.HandleFunc("/api/v3/destination/events/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	c := testClient(t, handler, "my-organizer-12345")
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}

func TestFetchNoOrganizers(t *testing.T) {
	c := New(nil, log.NewNop(), nil)
	events, err := c.Fetch(context.Background())
	if err != nil || events != nil {
		t.Errorf("Fetch() = %v, %v; want nil, nil", events, err)
	}
}

func TestName(t *testing.T) {
	c := New(nil, log.NewNop(), nil)
	if c.Name() != internal.SourceEventbrite {
		t.Errorf("Name() = %q", c.Name())
	}
}
