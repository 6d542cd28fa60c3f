// Package classify assigns each event to its target bucket. A cluster
// is confirmed when any merged member carried a confirmation (an RSVP,
// an announced speaker); everything else is possible.
package classify

import "eventsync/internal"

// Event sets the status on a single event.
func Event(ev internal.Event) internal.Event {
	if ev.Confirmed {
		ev.Status = internal.StatusConfirmed
	} else {
		ev.Status = internal.StatusPossible
	}
	return ev
}

// Apply classifies a batch in place.
func Apply(events []internal.Event) {
	for i := range events {
		events[i] = Event(events[i])
	}
}
