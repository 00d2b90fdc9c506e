// Package timeline classifies appearances relative to a reference instant.
//
// Every function here is pure: the caller supplies "now", inputs are never
// modified, and results are recomputed on each call.
package timeline

import (
	"sort"
	"time"

	"folio/internal/model"
)

// Preview is the compact home-page view of appearances.
type Preview struct {
	// Upcoming is ordered by descending start date (soonest last).
	Upcoming []model.Event `json:"upcoming"`
	// Past is ordered by ascending distance to the reference instant.
	Past []model.Event `json:"past"`
}

// IsUpcoming reports whether start lies strictly after ref. An event that
// starts exactly at ref counts as past.
func IsUpcoming(start, ref time.Time) bool {
	return start.After(ref)
}

// Partition splits events into upcoming and past. Relative input order is
// kept within each group. Both results are non-nil.
func Partition(events []model.Event, ref time.Time) (upcoming, past []model.Event) {
	upcoming = make([]model.Event, 0, len(events))
	past = make([]model.Event, 0, len(events))
	for _, ev := range events {
		if IsUpcoming(ev.StartDate, ref) {
			upcoming = append(upcoming, ev)
		} else {
			past = append(past, ev)
		}
	}
	return upcoming, past
}

// Distance is the absolute duration between start and ref. Subtracting
// the earlier time from the later one keeps the result non-negative, and
// time.Time.Sub caps it at the largest representable duration.
func Distance(start, ref time.Time) time.Duration {
	if start.After(ref) {
		return start.Sub(ref)
	}
	return ref.Sub(start)
}

type ranked struct {
	event    model.Event
	distance time.Duration
}

// NearestN returns at most n events closest to ref, ordered by ascending
// distance. Equal distances keep their input order.
func NearestN(events []model.Event, ref time.Time, n int) []model.Event {
	if n <= 0 || len(events) == 0 {
		return []model.Event{}
	}

	pairs := make([]ranked, len(events))
	for i, ev := range events {
		pairs[i] = ranked{event: ev, distance: Distance(ev.StartDate, ref)}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].distance < pairs[j].distance
	})

	if n > len(pairs) {
		n = len(pairs)
	}
	out := make([]model.Event, n)
	for i := range out {
		out[i] = pairs[i].event
	}
	return out
}

// PreviewUpcoming selects the n events nearest to ref and partitions them.
// Upcoming events are shown latest first so the soonest one sits right
// above the past group; past events stay nearest first.
func PreviewUpcoming(events []model.Event, ref time.Time, n int) Preview {
	upcoming, past := Partition(NearestN(events, ref, n), ref)
	SortByStartDesc(upcoming)
	return Preview{Upcoming: upcoming, Past: past}
}

// SortByStartDesc orders events in place by descending start date. Ties
// keep their relative order.
func SortByStartDesc(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.After(events[j].StartDate)
	})
}
