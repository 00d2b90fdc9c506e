package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"folio/internal/model"
)

const productID = "-//folio//appearances//EN"

// ExportOptions describes the calendar being published.
type ExportOptions struct {
	// Name is shown by calendar clients (X-WR-CALNAME).
	Name string
	// BaseURL is the public site origin; event links point into its
	// appearances page.
	BaseURL string
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// Export renders events as an iCalendar document. UIDs are name-based
// UUIDs of the event's anchor on the site, so they stay stable across
// exports.
func Export(events []model.Event, opts ExportOptions) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	stamp := opts.Stamp.UTC()
	for _, ev := range events {
		anchor := anchorURL(opts.BaseURL, ev.ID)
		ve := cal.AddEvent(uuid.NewSHA1(uuid.NameSpaceURL, []byte(anchor)).String())
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Name)
		if place := ev.Location.Place(); place != "" {
			ve.SetLocation(place)
		}
		ve.SetURL(EventLink(opts.BaseURL, ev))

		if isAllDay(ev) {
			ve.SetAllDayStartAt(ev.StartDate)
			end := ev.EndDate
			if end.IsZero() {
				end = ev.StartDate
			}
			// DTEND is exclusive for all-day events.
			ve.SetAllDayEndAt(end.AddDate(0, 0, 1))
			continue
		}

		ve.SetStartAt(ev.StartDate)
		if !ev.EndDate.IsZero() {
			ve.SetEndAt(ev.EndDate)
		}
	}

	return cal.Serialize()
}

// EventLink is the canonical URL of an appearance: its own URL when the
// event names one, otherwise its anchor on the appearances page.
func EventLink(baseURL string, ev model.Event) string {
	if ev.URL != "" {
		return ev.URL
	}
	return anchorURL(baseURL, ev.ID)
}

func anchorURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/appearances#" + id
}

func isAllDay(ev model.Event) bool {
	if !isMidnight(ev.StartDate) {
		return false
	}
	return ev.EndDate.IsZero() || isMidnight(ev.EndDate)
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
