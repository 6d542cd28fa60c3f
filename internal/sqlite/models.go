package sqlite

import (
	"strings"
	"time"

	"eventsync/internal"
)

type Account struct {
	ID   string
	Auth string
}

func (a Account) Convert() *internal.Account {
	acc := internal.Account{
		Auth: a.Auth,
	}
	acc.Platform, acc.Name, _ = strings.Cut(a.ID, "/")
	return &acc
}

type Run struct {
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`

	Fetched int
	Skipped int
	Merged  int
	Created int
	Updated int
	Deleted int
	Failed  int

	FailedSources string `db:"failed_sources"`
}

func (r Run) Convert() *internal.Summary {
	return &internal.Summary{
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Fetched:       r.Fetched,
		Skipped:       r.Skipped,
		Merged:        r.Merged,
		Created:       r.Created,
		Updated:       r.Updated,
		Deleted:       r.Deleted,
		Failed:        r.Failed,
		FailedSources: splitSources(r.FailedSources),
	}
}

func joinSources(names []internal.SourceName) string {
	strs := make([]string, len(names))
	for i, n := range names {
		strs[i] = n.String()
	}
	return strings.Join(strs, ",")
}

func splitSources(s string) []internal.SourceName {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	names := make([]internal.SourceName, len(parts))
	for i, p := range parts {
		names[i] = internal.SourceName(p)
	}
	return names
}
