// Package pipeline wires the full run together: fetch from every
// enabled source, normalize, deduplicate, classify and reconcile the
// result against the remote calendars.
package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eventsync/internal"
	"eventsync/internal/classify"
	"eventsync/internal/config"
	"eventsync/internal/dedup"
	"eventsync/internal/normalize"
	"eventsync/internal/reconcile"
	"eventsync/internal/source"
	"eventsync/pkg/log"
)

type Runner struct {
	logger   log.Logger
	registry *source.Registry
	store    reconcile.Store
	cfg      *config.Config

	// now is replaceable in tests.
	now func() time.Time
}

func New(logger log.Logger, registry *source.Registry, store reconcile.Store, cfg *config.Config) *Runner {
	return &Runner{
		logger:   logger,
		registry: registry,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes one full pass. A failing source degrades to zero events
// and is reported in the summary; only a broken setup returns an error.
func (r *Runner) Run(ctx context.Context) (*internal.Summary, error) {
	summary := &internal.Summary{StartedAt: r.now()}
	now := summary.StartedAt

	raws, failed := r.fetchAll(ctx)
	summary.Fetched = len(raws)
	summary.FailedSources = failed

	events, skipped := normalize.Batch(raws, now, normalize.Options{
		Horizon:   r.cfg.Horizon(),
		PastGrace: r.cfg.PastGrace,
	})
	summary.Skipped = skipped

	deduped := dedup.Deduplicate(events, dedup.Options{
		Threshold:      r.cfg.Dedup.Threshold,
		MaxStartGap:    r.cfg.Dedup.MaxStartGap,
		Location:       r.cfg.Location(),
		SourcePriority: r.cfg.SourcePriority,
	})
	summary.Merged = len(events) - len(deduped)

	classify.Apply(deduped)

	targets := reconcile.Targets{
		Confirmed: r.cfg.Calendars.Confirmed,
		Possible:  r.cfg.Calendars.Possible,
	}
	state := reconcile.ListState(ctx, r.store, targets, r.logger)
	plan := reconcile.BuildPlan(deduped, state, targets)
	if plan.Empty() {
		r.logger.Info(ctx, "calendars already up to date")
	}
	report := reconcile.Apply(ctx, r.store, plan, r.logger)

	summary.Created = report.Created
	summary.Updated = report.Updated
	summary.Deleted = report.Deleted
	summary.Failed = report.Failed
	summary.FinishedAt = r.now()

	r.logger.Infof(ctx, "run finished: %s", summary)
	return summary, nil
}

// fetchAll queries every enabled source concurrently, each under its
// own timeout. Results keep registration order so downstream stages see
// a deterministic stream.
func (r *Runner) fetchAll(ctx context.Context) ([]internal.RawEvent, []internal.SourceName) {
	sources := r.registry.Enabled(r.cfg)

	var (
		mu      sync.Mutex
		batches = make([][]internal.RawEvent, len(sources))
		failed  []internal.SourceName
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
			defer cancel()

			raws, err := src.Fetch(fctx)
			if err != nil {
				r.logger.Warnf(ctx, "source %s unavailable: %v", src.Name(), err)
				mu.Lock()
				failed = append(failed, src.Name())
				mu.Unlock()
				return nil
			}
			r.logger.Debugf(ctx, "source %s returned %d records", src.Name(), len(raws))
			batches[i] = raws
			return nil
		})
	}
	g.Wait()

	var raws []internal.RawEvent
	for _, batch := range batches {
		raws = append(raws, batch...)
	}
	return raws, failed
}
