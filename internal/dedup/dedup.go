// Package dedup collapses listings that describe the same real-world
// event. Events are bucketed by calendar day, scored pairwise inside
// same and adjacent buckets, and clustered transitively with a disjoint
// set: if A matches B and B matches C, all three form one cluster even
// when A and C alone fall below the threshold.
package dedup

import (
	"sort"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"eventsync/internal"
)

type Options struct {
	// Threshold is the minimum combined similarity for two events to be
	// considered the same; a score exactly at the threshold merges.
	Threshold float64
	// MaxStartGap is the start-time distance beyond which two events
	// never merge regardless of title.
	MaxStartGap time.Duration
	// Location is the timezone used for day bucketing.
	Location *time.Location
	// SourcePriority orders sources for representative selection, most
	// preferred first. Sources not listed rank last.
	SourcePriority []internal.SourceName
}

// timePenaltyWeight shaves up to 10% off the title score across the
// allowed gap, so closer starts win without a near-max gap vetoing an
// identical title.
const timePenaltyWeight = 0.1

// locationBoost rewards matching location text.
const locationBoost = 0.05

// Deduplicate returns one representative event per cluster. The result
// is sorted by (start time, tag) and independent of input order.
func Deduplicate(events []internal.Event, opts Options) []internal.Event {
	if len(events) == 0 {
		return nil
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	// Stable working order so clustering decisions do not depend on
	// caller ordering.
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ea, eb := events[idx[a]], events[idx[b]]
		if !ea.StartsAt.Equal(eb.StartsAt) {
			return ea.StartsAt.Before(eb.StartsAt)
		}
		return ea.Tag() < eb.Tag()
	})
	ordered := make([]internal.Event, len(events))
	for i, j := range idx {
		ordered[i] = events[j]
	}

	// Bucket by calendar day in the configured timezone. Only events in
	// the same or an adjacent day bucket are compared, which bounds the
	// pairwise cost and matches the max-gap rule.
	buckets := make(map[int][]int)
	for i, ev := range ordered {
		d := dayKey(ev.StartsAt, loc)
		buckets[d] = append(buckets[d], i)
	}

	titleMetric := metrics.NewJaroWinkler()
	titleMetric.CaseSensitive = false

	uf := newUnionFind(len(ordered))
	for day, members := range buckets {
		candidates := append([]int(nil), members...)
		candidates = append(candidates, buckets[day+1]...)
		for ai, a := range members {
			for _, b := range candidates[ai+1:] {
				if a == b {
					continue
				}
				score := similarity(&ordered[a], &ordered[b], titleMetric, opts)
				if score >= opts.Threshold {
					uf.union(a, b)
				}
			}
		}
	}

	clusters := make(map[int][]int)
	for i := range ordered {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	result := make([]internal.Event, 0, len(clusters))
	for _, members := range clusters {
		result = append(result, collapse(ordered, members, opts))
	}
	sort.Slice(result, func(a, b int) bool {
		if !result[a].StartsAt.Equal(result[b].StartsAt) {
			return result[a].StartsAt.Before(result[b].StartsAt)
		}
		return result[a].Tag() < result[b].Tag()
	})
	return result
}

// similarity is symmetric, monotonically decreasing in the start gap
// and increasing in title closeness. It is zero beyond the max gap.
func similarity(a, b *internal.Event, titleMetric *metrics.JaroWinkler, opts Options) float64 {
	gap := a.StartsAt.Sub(b.StartsAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > opts.MaxStartGap {
		return 0
	}

	score := strutil.Similarity(a.Title, b.Title, titleMetric)
	score *= 1 - timePenaltyWeight*float64(gap)/float64(opts.MaxStartGap)

	if locationsMatch(a.Location, b.Location) {
		score += locationBoost
	}
	if score > 1 {
		score = 1
	}
	return score
}

func locationsMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// collapse elects the representative for one cluster and merges
// provenance into it.
func collapse(events []internal.Event, members []int, opts Options) internal.Event {
	best := members[0]
	for _, m := range members[1:] {
		if better(&events[m], &events[best], opts.SourcePriority) {
			best = m
		}
	}

	rep := events[best]
	// Deterministic fill order for member traversal.
	rest := append([]int(nil), members...)
	sort.Slice(rest, func(a, b int) bool {
		return events[rest[a]].Tag() < events[rest[b]].Tag()
	})
	for _, m := range rest {
		ev := &events[m]
		rep.AddMembers(ev.Members...)
		// Confirmation is sticky: one RSVP on any source is enough.
		rep.Confirmed = rep.Confirmed || ev.Confirmed
		if rep.Location == "" {
			rep.Location = ev.Location
		}
		if rep.URL == "" {
			rep.URL = ev.URL
		}
		if rep.EndsAt.IsZero() {
			rep.EndsAt = ev.EndsAt
		}
	}
	return rep
}

// better reports whether a should represent the cluster instead of b:
// higher source priority, then longer description, then lexicographic
// tag for determinism.
func better(a, b *internal.Event, priority []internal.SourceName) bool {
	pa, pb := sourceRank(a.Source, priority), sourceRank(b.Source, priority)
	if pa != pb {
		return pa < pb
	}
	if len(a.Description) != len(b.Description) {
		return len(a.Description) > len(b.Description)
	}
	return a.Tag() < b.Tag()
}

func sourceRank(src internal.SourceName, priority []internal.SourceName) int {
	for i, name := range priority {
		if name == src {
			return i
		}
	}
	return len(priority)
}

// dayKey numbers calendar days consecutively so adjacency survives
// month and year boundaries.
func dayKey(t time.Time, loc *time.Location) int {
	t = t.In(loc)
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
