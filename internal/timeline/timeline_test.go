package timeline

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"folio/internal/model"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func ids(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func assertIDs(t *testing.T, label string, got []model.Event, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("%s: expected %v, got %v", label, want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("%s: expected %v, got %v", label, want, g)
		}
	}
}

func yearEvents(t *testing.T) []model.Event {
	t.Helper()
	return []model.Event{
		{ID: "jan", Name: "New Year Meetup", StartDate: day(t, "2024-01-01")},
		{ID: "jun", Name: "Summit", StartDate: day(t, "2024-06-01")},
		{ID: "dec", Name: "Winter Conf", StartDate: day(t, "2024-12-01")},
	}
}

func TestPartition_SplitsAroundReference(t *testing.T) {
	t.Parallel()

	upcoming, past := Partition(yearEvents(t), day(t, "2024-06-15"))

	assertIDs(t, "upcoming", upcoming, "dec")
	assertIDs(t, "past", past, "jan", "jun")
}

func TestPartition_EventAtReferenceIsPast(t *testing.T) {
	t.Parallel()

	ref := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	events := []model.Event{
		{ID: "now", StartDate: ref},
		{ID: "later", StartDate: ref.Add(time.Nanosecond)},
	}

	upcoming, past := Partition(events, ref)

	assertIDs(t, "upcoming", upcoming, "later")
	assertIDs(t, "past", past, "now")
}

func TestPartition_ComparesInstantsAcrossZones(t *testing.T) {
	t.Parallel()

	ref := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)
	events := []model.Event{
		// Same instant as ref, expressed in another zone.
		{ID: "same", StartDate: time.Date(2024, 6, 15, 21, 0, 0, 0, tokyo)},
	}

	upcoming, past := Partition(events, ref)
	if len(upcoming) != 0 || len(past) != 1 {
		t.Fatalf("expected event at same instant to be past, got upcoming=%v past=%v", ids(upcoming), ids(past))
	}
}

func TestPartition_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		{ID: "b", StartDate: day(t, "2024-03-01")},
		{ID: "x", StartDate: day(t, "2025-01-01")},
		{ID: "a", StartDate: day(t, "2024-01-01")},
		{ID: "y", StartDate: day(t, "2024-09-01")},
	}

	upcoming, past := Partition(events, day(t, "2024-06-01"))

	assertIDs(t, "upcoming", upcoming, "x", "y")
	assertIDs(t, "past", past, "b", "a")
}

func TestPartition_IsPermutation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	base := day(t, "2024-01-01")
	ref := base.Add(180 * 24 * time.Hour)

	for round := 0; round < 50; round++ {
		n := rng.Intn(30)
		events := make([]model.Event, n)
		for i := range events {
			events[i] = model.Event{
				ID:        fmt.Sprintf("ev-%d", i),
				StartDate: base.Add(time.Duration(rng.Intn(365)) * 24 * time.Hour),
			}
		}

		upcoming, past := Partition(events, ref)
		if len(upcoming)+len(past) != n {
			t.Fatalf("round %d: expected %d events, got %d", round, n, len(upcoming)+len(past))
		}

		seen := make(map[string]int, n)
		for _, ev := range upcoming {
			if !ev.StartDate.After(ref) {
				t.Fatalf("round %d: %s classified upcoming at %s", round, ev.ID, ev.StartDate)
			}
			seen[ev.ID]++
		}
		for _, ev := range past {
			if ev.StartDate.After(ref) {
				t.Fatalf("round %d: %s classified past at %s", round, ev.ID, ev.StartDate)
			}
			seen[ev.ID]++
		}
		for _, ev := range events {
			if seen[ev.ID] != 1 {
				t.Fatalf("round %d: %s appeared %d times", round, ev.ID, seen[ev.ID])
			}
		}
	}
}

func TestPartition_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	events := yearEvents(t)
	Partition(events, day(t, "2024-06-15"))
	assertIDs(t, "input", events, "jan", "jun", "dec")
}

func TestNearestN_OrdersByDistance(t *testing.T) {
	t.Parallel()

	got := NearestN(yearEvents(t), day(t, "2024-06-15"), 2)
	assertIDs(t, "nearest", got, "jun", "dec")
}

func TestNearestN_ZeroReturnsEmpty(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -3} {
		got := NearestN(yearEvents(t), day(t, "2024-06-15"), n)
		if got == nil || len(got) != 0 {
			t.Fatalf("n=%d: expected empty non-nil slice, got %v", n, got)
		}
	}
}

func TestNearestN_LargeNReturnsAllSorted(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	events := yearEvents(t)

	got := NearestN(events, ref, 10)
	assertIDs(t, "nearest", got, "jun", "dec", "jan")

	for i := 1; i < len(got); i++ {
		if Distance(got[i-1].StartDate, ref) > Distance(got[i].StartDate, ref) {
			t.Fatalf("not ascending at %d: %v", i, ids(got))
		}
	}
}

func TestNearestN_DuplicateStartDatesRankedIndependently(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	events := []model.Event{
		{ID: "far", StartDate: day(t, "2023-01-01")},
		{ID: "twin-a", StartDate: day(t, "2024-06-10")},
		{ID: "near", StartDate: day(t, "2024-06-14")},
		{ID: "twin-b", StartDate: day(t, "2024-06-10")},
	}

	got := NearestN(events, ref, 3)
	assertIDs(t, "nearest", got, "near", "twin-a", "twin-b")
}

func TestNearestN_IdenticalRecordsBothKept(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	dup := model.Event{ID: "same", StartDate: day(t, "2024-06-20")}
	events := []model.Event{
		{ID: "old", StartDate: day(t, "2020-01-01")},
		dup,
		dup,
	}

	got := NearestN(events, ref, 2)
	assertIDs(t, "nearest", got, "same", "same")
}

func TestNearestN_TiesKeepInputOrder(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	events := []model.Event{
		{ID: "after", StartDate: day(t, "2024-06-20")},
		{ID: "before", StartDate: day(t, "2024-06-10")},
	}

	assertIDs(t, "nearest", NearestN(events, ref, 2), "after", "before")

	events[0], events[1] = events[1], events[0]
	assertIDs(t, "swapped", NearestN(events, ref, 2), "before", "after")
}

func TestNearestN_ExtremeDatesDoNotOverflow(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	events := []model.Event{
		{ID: "ancient", StartDate: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "close", StartDate: day(t, "2024-06-16")},
		{ID: "distant", StartDate: time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	got := NearestN(events, ref, 1)
	assertIDs(t, "nearest", got, "close")

	maxDuration := time.Duration(math.MaxInt64)
	if d := Distance(events[0].StartDate, ref); d != maxDuration {
		t.Fatalf("expected saturated distance into the past, got %s", d)
	}
	if d := Distance(events[2].StartDate, ref); d != maxDuration {
		t.Fatalf("expected saturated distance into the future, got %s", d)
	}
}

func TestPreviewUpcoming_OrdersGroups(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	events := []model.Event{
		{ID: "p-far", StartDate: day(t, "2024-01-01")},
		{ID: "u-soon", StartDate: day(t, "2024-06-20")},
		{ID: "p-near", StartDate: day(t, "2024-06-01")},
		{ID: "u-later", StartDate: day(t, "2024-07-10")},
		{ID: "u-outside", StartDate: day(t, "2026-01-01")},
	}

	preview := PreviewUpcoming(events, ref, 4)

	assertIDs(t, "upcoming", preview.Upcoming, "u-later", "u-soon")
	assertIDs(t, "past", preview.Past, "p-near", "p-far")
}

func TestPreviewUpcoming_ReferenceInstantIsPast(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")
	events := []model.Event{{ID: "today", StartDate: ref}}

	preview := PreviewUpcoming(events, ref, 5)
	if len(preview.Upcoming) != 0 {
		t.Fatalf("expected no upcoming, got %v", ids(preview.Upcoming))
	}
	assertIDs(t, "past", preview.Past, "today")
}

func TestEmptyInput(t *testing.T) {
	t.Parallel()

	ref := day(t, "2024-06-15")

	upcoming, past := Partition(nil, ref)
	if upcoming == nil || past == nil || len(upcoming) != 0 || len(past) != 0 {
		t.Fatalf("expected empty groups, got %v / %v", upcoming, past)
	}

	if got := NearestN(nil, ref, 5); got == nil || len(got) != 0 {
		t.Fatalf("expected empty nearest, got %v", got)
	}

	preview := PreviewUpcoming([]model.Event{}, ref, 5)
	if len(preview.Upcoming) != 0 || len(preview.Past) != 0 {
		t.Fatalf("expected empty preview, got %+v", preview)
	}
}

func TestSortByStartDesc_StableOnTies(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		{ID: "a", StartDate: day(t, "2024-01-01")},
		{ID: "b", StartDate: day(t, "2024-03-01")},
		{ID: "c", StartDate: day(t, "2024-01-01")},
	}
	SortByStartDesc(events)
	assertIDs(t, "sorted", events, "b", "a", "c")
}
