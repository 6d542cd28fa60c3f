// Package reconcile diffs the computed event set against the remote
// calendar state and applies the minimal set of operations. Matching is
// by the source tag embedded in each remote record, never by title or
// time, so upstream edits become updates instead of duplicates.
package reconcile

import (
	"context"
	"sort"
	"time"

	"eventsync/internal"
	"eventsync/pkg/log"
)

// Record is one remote calendar entry as seen through the store
// adapter. Tag is empty for records this system did not create; those
// are never touched.
type Record struct {
	RemoteID    string
	CalendarID  string
	Tag         string
	Title       string
	Description string
	Location    string
	URL         string
	StartsAt    time.Time
	EndsAt      time.Time
}

// Store is the calendar store adapter. Transient errors are the
// adapter's to retry; whatever comes back here is recorded and the
// batch continues.
type Store interface {
	List(ctx context.Context, calendarID string) ([]*Record, error)
	Create(ctx context.Context, calendarID string, ev *internal.Event) (*Record, error)
	Update(ctx context.Context, rec *Record, ev *internal.Event) (*Record, error)
	Delete(ctx context.Context, rec *Record) error
}

// Targets names the two calendars events are reconciled into.
type Targets struct {
	Confirmed string
	Possible  string
}

func (t Targets) forStatus(status internal.Status) string {
	if status == internal.StatusConfirmed {
		return t.Confirmed
	}
	return t.Possible
}

func (t Targets) other(calendarID string) string {
	if calendarID == t.Confirmed {
		return t.Possible
	}
	return t.Confirmed
}

// State is the remote state read at the start of a run. Only calendars
// that listed successfully appear in Records: a failed read skips that
// calendar's reconciliation entirely rather than being mistaken for an
// empty calendar.
type State struct {
	Records map[string][]*Record
}

func (s *State) listed(calendarID string) bool {
	_, ok := s.Records[calendarID]
	return ok
}

// ListState reads both target calendars. A failed list is logged and
// the calendar is left out of the state.
func ListState(ctx context.Context, store Store, targets Targets, logger log.Logger) *State {
	state := &State{Records: make(map[string][]*Record, 2)}
	for _, calID := range []string{targets.Confirmed, targets.Possible} {
		recs, err := store.List(ctx, calID)
		if err != nil {
			logger.Warnf(ctx, "listing calendar %s failed, skipping its reconciliation: %v", calID, err)
			continue
		}
		state.Records[calID] = recs
	}
	return state
}

type CreateOp struct {
	CalendarID string
	Event      internal.Event
}

type UpdateOp struct {
	Record *Record
	Event  internal.Event
}

type DeleteOp struct {
	Record *Record
}

// Plan is the ordered operation set for one run. Application order is
// create, update, delete, minimizing the window where an event is
// absent from the calendar a client may be viewing.
type Plan struct {
	Creates []CreateOp
	Updates []UpdateOp
	Deletes []DeleteOp
}

func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// BuildPlan computes the diff between desired events and remote state.
//
// Per desired event: absent everywhere means create; present in the
// wrong calendar means a migration (delete there, create in the target
// calendar) because the two statuses are distinct remote collections;
// present in the right calendar with drifted fields means update. Any
// tagged record left unclaimed is deleted; untagged records are foreign
// and left alone.
func BuildPlan(desired []internal.Event, state *State, targets Targets) *Plan {
	byTag := make(map[string]map[string]*Record, len(state.Records))
	for calID, recs := range state.Records {
		index := make(map[string]*Record, len(recs))
		for _, rec := range recs {
			if rec.Tag != "" {
				index[rec.Tag] = rec
			}
		}
		byTag[calID] = index
	}

	plan := new(Plan)
	claimed := make(map[*Record]bool)

	for i := range desired {
		ev := desired[i]
		target := targets.forStatus(ev.Status)
		if !state.listed(target) {
			continue
		}

		if rec, ok := byTag[target][ev.Tag()]; ok {
			claimed[rec] = true
			if recordDiffers(rec, &ev) {
				plan.Updates = append(plan.Updates, UpdateOp{Record: rec, Event: ev})
			}
			continue
		}

		// Status changed upstream: the record lives in the other
		// calendar and has to move, not update in place.
		other := targets.other(target)
		if rec, ok := byTag[other][ev.Tag()]; ok {
			claimed[rec] = true
			plan.Deletes = append(plan.Deletes, DeleteOp{Record: rec})
		}
		plan.Creates = append(plan.Creates, CreateOp{CalendarID: target, Event: ev})
	}

	for _, calID := range []string{targets.Confirmed, targets.Possible} {
		for _, rec := range byTag[calID] {
			if !claimed[rec] {
				plan.Deletes = append(plan.Deletes, DeleteOp{Record: rec})
			}
		}
	}

	sort.Slice(plan.Deletes, func(a, b int) bool {
		da, db := plan.Deletes[a].Record, plan.Deletes[b].Record
		if da.CalendarID != db.CalendarID {
			return da.CalendarID < db.CalendarID
		}
		return da.Tag < db.Tag
	})
	return plan
}

func recordDiffers(rec *Record, ev *internal.Event) bool {
	// Remote timestamps come back at second precision; avoid flagging
	// sub-second drift as a field change.
	return rec.Title != ev.Title ||
		rec.Description != ev.Description ||
		rec.Location != ev.Location ||
		rec.URL != ev.URL ||
		!rec.StartsAt.Truncate(time.Second).Equal(ev.StartsAt.Truncate(time.Second)) ||
		!rec.EndsAt.Truncate(time.Second).Equal(ev.EffectiveEnd().Truncate(time.Second))
}

// OpResult is the outcome of one applied operation.
type OpResult struct {
	Op         string // create, update, delete
	CalendarID string
	Tag        string
	Err        error
}

// Report enumerates per-operation outcomes of a best-effort apply.
type Report struct {
	Created int
	Updated int
	Deleted int
	Failed  int
	Results []OpResult
}

func (r *Report) record(op, calendarID, tag string, err error) {
	r.Results = append(r.Results, OpResult{Op: op, CalendarID: calendarID, Tag: tag, Err: err})
	if err != nil {
		r.Failed++
		return
	}
	switch op {
	case "create":
		r.Created++
	case "update":
		r.Updated++
	case "delete":
		r.Deleted++
	}
}

// Apply executes the plan in create, update, delete order. A failed
// operation is recorded and the rest of the batch continues.
func Apply(ctx context.Context, store Store, plan *Plan, logger log.Logger) *Report {
	report := new(Report)

	for _, op := range plan.Creates {
		logger.Infof(ctx, "creating %q (%s) in %s", op.Event.Title, op.Event.Tag(), op.CalendarID)
		_, err := store.Create(ctx, op.CalendarID, &op.Event)
		if err != nil {
			logger.Errorf(ctx, "create %s failed: %v", op.Event.Tag(), err)
		}
		report.record("create", op.CalendarID, op.Event.Tag(), err)
	}
	for _, op := range plan.Updates {
		logger.Infof(ctx, "updating %q (%s) in %s", op.Event.Title, op.Event.Tag(), op.Record.CalendarID)
		_, err := store.Update(ctx, op.Record, &op.Event)
		if err != nil {
			logger.Errorf(ctx, "update %s failed: %v", op.Event.Tag(), err)
		}
		report.record("update", op.Record.CalendarID, op.Event.Tag(), err)
	}
	for _, op := range plan.Deletes {
		logger.Infof(ctx, "deleting %q (%s) from %s", op.Record.Title, op.Record.Tag, op.Record.CalendarID)
		err := store.Delete(ctx, op.Record)
		if err != nil {
			logger.Errorf(ctx, "delete %s failed: %v", op.Record.Tag, err)
		}
		report.record("delete", op.Record.CalendarID, op.Record.Tag, err)
	}
	return report
}
