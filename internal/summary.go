package internal

import (
	"fmt"
	"strings"
	"time"
)

// Summary collects the counters for a single run. It is what the run
// logs and what gets persisted to the run-history table.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched int // raw records received from all sources
	Skipped int // dropped by normalization
	Merged  int // collapsed away by deduplication
	Created int
	Updated int
	Deleted int
	Failed  int // remote operations that did not apply

	// FailedSources lists sources that contributed zero events because
	// their fetch failed or timed out.
	FailedSources []SourceName
}

func (s Summary) String() string {
	out := fmt.Sprintf("fetched=%d skipped=%d merged=%d created=%d updated=%d deleted=%d failed=%d",
		s.Fetched, s.Skipped, s.Merged, s.Created, s.Updated, s.Deleted, s.Failed)
	if len(s.FailedSources) > 0 {
		names := make([]string, len(s.FailedSources))
		for i, src := range s.FailedSources {
			names[i] = src.String()
		}
		out += " failed_sources=" + strings.Join(names, ",")
	}
	return out
}
