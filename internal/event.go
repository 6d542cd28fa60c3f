package internal

import (
	"sort"
	"time"
)

type SourceName string

func (s SourceName) String() string {
	return string(s)
}

var (
	SourcePartiful   SourceName = "partiful"
	SourceMeetup     SourceName = "meetup"
	SourceEventbrite SourceName = "eventbrite"
	SourceNYCSystems SourceName = "nycsystems"
)

type Status string

func (s Status) String() string {
	return string(s)
}

var (
	StatusConfirmed Status = "confirmed"
	StatusPossible  Status = "possible"
)

// RawEvent is a single listing as fetched from a source, before
// normalization. Fields are copied as-is from the platform response.
type RawEvent struct {
	Source      SourceName
	ID          string
	Title       string
	Description string
	Location    string
	URL         string
	StartsAt    time.Time
	EndsAt      time.Time // zero when the listing has no end time
	Confirmed   bool
}

// MemberRef identifies one source listing merged into an Event.
type MemberRef struct {
	Source SourceName
	ID     string
}

func (m MemberRef) Tag() string {
	return m.Source.String() + "/" + m.ID
}

// Event is the canonical representation of one real-world event. After
// deduplication it stands for every listing in Members, with Source/ID
// being the representative listing.
type Event struct {
	Source      SourceName
	ID          string
	Title       string
	Description string
	Location    string
	URL         string
	StartsAt    time.Time
	EndsAt      time.Time
	Confirmed   bool
	Status      Status
	Members     []MemberRef
}

// Tag is the stable identifier stored on the remote record. Remote
// matching is by tag only, never by title or time.
func (e Event) Tag() string {
	return MemberRef{Source: e.Source, ID: e.ID}.Tag()
}

func (e Event) Ref() MemberRef {
	return MemberRef{Source: e.Source, ID: e.ID}
}

// EffectiveEnd is the end time with open-ended listings defaulted to an
// hour after start, for stores that require an end.
func (e Event) EffectiveEnd() time.Time {
	if e.EndsAt.IsZero() {
		return e.StartsAt.Add(time.Hour)
	}
	return e.EndsAt
}

// AddMembers merges refs into the member set, keeping it sorted and
// free of duplicates.
func (e *Event) AddMembers(refs ...MemberRef) {
	seen := make(map[MemberRef]struct{}, len(e.Members)+len(refs))
	for _, m := range e.Members {
		seen[m] = struct{}{}
	}
	for _, m := range refs {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			e.Members = append(e.Members, m)
		}
	}
	sort.Slice(e.Members, func(i, j int) bool {
		return e.Members[i].Tag() < e.Members[j].Tag()
	})
}
