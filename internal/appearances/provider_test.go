package appearances

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/clock"
	"folio/internal/config"
	"folio/internal/ics"
	"folio/internal/model"
)

type docList []*model.Document

func (d docList) List(kind model.Kind) []*model.Document {
	out := make([]*model.Document, 0)
	for _, doc := range d {
		if doc.Kind == kind {
			out = append(out, doc)
		}
	}
	return out
}

func appearance(slug string, start time.Time, mod func(*model.AppearanceFields)) *model.Document {
	fields := &model.AppearanceFields{Name: strings.ToUpper(slug), StartDate: start}
	if mod != nil {
		mod(fields)
	}
	return &model.Document{Kind: model.KindAppearance, Slug: slug, Title: fields.Name, Event: fields}
}

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestListEventsFromContent(t *testing.T) {
	docs := docList{
		appearance("jan", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), func(f *model.AppearanceFields) {
			f.Workshop = "go-basics"
		}),
		appearance("dec", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), func(f *model.AppearanceFields) {
			f.Talk = "concurrency"
			f.Location = model.Location{City: "Vienna", Country: "Austria"}
		}),
		appearance("jun", time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC), nil),
		{Kind: model.KindTalk, Slug: "concurrency", Title: "Concurrency"},
	}
	p := NewProvider(docs, Options{Clock: clock.NewFixed(now)})

	events, err := p.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}

	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.ID)
		if ev.SourceID != ContentSourceID {
			t.Fatalf("unexpected source %q", ev.SourceID)
		}
	}
	if got := strings.Join(ids, ","); got != "dec,jun,jan" {
		t.Fatalf("expected descending start order, got %s", got)
	}
	if events[0].Location.Place() != "Vienna, Austria" {
		t.Fatalf("location not carried: %+v", events[0].Location)
	}

	ws, err := p.ForWorkshop(context.Background(), "go-basics")
	if err != nil || len(ws) != 1 || ws[0].ID != "jan" {
		t.Fatalf("ForWorkshop: %v %+v", err, ws)
	}
	talks, err := p.ForTalk(context.Background(), "concurrency")
	if err != nil || len(talks) != 1 || talks[0].ID != "dec" {
		t.Fatalf("ForTalk: %v %+v", err, talks)
	}
	none, err := p.ForTalk(context.Background(), "missing")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil result, got %v %+v", err, none)
	}
}

func TestListEventsExpandsRecurringAppearances(t *testing.T) {
	docs := docList{
		appearance("meetup", time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC), func(f *model.AppearanceFields) {
			f.EndDate = time.Date(2024, 6, 3, 20, 0, 0, 0, time.UTC)
			f.RRule = "FREQ=WEEKLY;COUNT=4"
		}),
	}
	p := NewProvider(docs, Options{Clock: clock.NewFixed(now)})

	events, err := p.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	want := []string{"meetup-2024-06-24", "meetup-2024-06-17", "meetup-2024-06-10", "meetup-2024-06-03"}
	if len(events) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(events))
	}
	for i, ev := range events {
		if ev.ID != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], ev.ID)
		}
		if ev.EndDate.Sub(ev.StartDate) != 2*time.Hour {
			t.Fatalf("event %d: expected 2h duration, got %s", i, ev.EndDate.Sub(ev.StartDate))
		}
	}
}

func TestListEventsHonorsCancelledContext(t *testing.T) {
	p := NewProvider(docList{}, Options{Clock: clock.NewFixed(now)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ListEvents(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

const talkFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//feed//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:talk-1@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240910T090000Z\r\n" +
	"DTEND:20240910T100000Z\r\n" +
	"SUMMARY:Talk at DevDays\r\n" +
	"LOCATION:Portland\\, Oregon\\, USA\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ancient@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20100101T090000Z\r\n" +
	"SUMMARY:Outside the window\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestRefreshMergesFeedEvents(t *testing.T) {
	var broken atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if broken.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", `"1"`)
		_, _ = w.Write([]byte(talkFeed))
	}))
	defer srv.Close()

	docs := docList{
		appearance("local", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil),
	}
	p := NewProvider(docs, Options{
		Feeds:   []config.FeedConfig{{ID: "conf", URL: srv.URL + "/talks.ics"}},
		Fetcher: ics.NewFetcher(t.TempDir(), srv.Client()),
		Clock:   clock.NewFixed(now),
	})

	if !p.RefreshedAt().IsZero() {
		t.Fatalf("expected zero RefreshedAt before first refresh")
	}
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !p.RefreshedAt().Equal(now) {
		t.Fatalf("unexpected RefreshedAt %s", p.RefreshedAt())
	}

	events, err := p.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected local + one feed event, got %d: %+v", len(events), events)
	}
	feed := events[0]
	if feed.SourceID != "conf" || feed.Name != "Talk at DevDays" || !strings.HasPrefix(feed.ID, "conf-") {
		t.Fatalf("unexpected feed event %+v", feed)
	}
	if feed.Location != (model.Location{City: "Portland", State: "Oregon", Country: "USA"}) {
		t.Fatalf("unexpected location %+v", feed.Location)
	}
	if feed.EndDate.Sub(feed.StartDate) != time.Hour {
		t.Fatalf("expected end date from feed")
	}

	// A failing upstream without a usable body keeps the previous snapshot.
	broken.Store(true)
	p.fetcher = ics.NewFetcher(t.TempDir(), srv.Client())
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	again, _ := p.ListEvents(context.Background())
	if len(again) != 2 || again[0].ID != feed.ID {
		t.Fatalf("expected previous feed snapshot to survive, got %+v", again)
	}
}

func TestRefreshWithoutFeedsIsNoop(t *testing.T) {
	p := NewProvider(nil, Options{Clock: clock.NewFixed(now)})
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	events, err := p.ListEvents(context.Background())
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events, got %v %+v", err, events)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want model.Location
	}{
		{"", model.Location{}},
		{"Online", model.Location{City: "Online"}},
		{"Berlin, Germany", model.Location{City: "Berlin", Country: "Germany"}},
		{"Austin, TX, USA", model.Location{City: "Austin", State: "TX", Country: "USA"}},
		{" , Paris ,", model.Location{City: "Paris"}},
	}
	for _, tt := range tests {
		if got := parseLocation(tt.in); got != tt.want {
			t.Errorf("parseLocation(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestUniqueIDs(t *testing.T) {
	events := []model.Event{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "a-2"}, {ID: "a"}}
	uniqueIDs(events)

	seen := map[string]bool{}
	for _, ev := range events {
		if seen[ev.ID] {
			t.Fatalf("duplicate id %q in %+v", ev.ID, events)
		}
		seen[ev.ID] = true
	}
	if events[0].ID != "a" || events[2].ID != "a-2" {
		t.Fatalf("expected first occurrence untouched and second suffixed, got %+v", events)
	}
}

const allDayFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//feed//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:workshop-day@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240610\r\n" +
	"DTEND;VALUE=DATE:20240611\r\n" +
	"SUMMARY:Workshop Day\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:summit@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240701\r\n" +
	"DTEND;VALUE=DATE:20240704\r\n" +
	"SUMMARY:Summit\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestAllDayFeedEventsKeepTheirLengthOnExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(allDayFeed))
	}))
	defer srv.Close()

	p := NewProvider(docList{}, Options{
		Feeds:   []config.FeedConfig{{ID: "cal", URL: srv.URL + "/cal.ics"}},
		Fetcher: ics.NewFetcher(t.TempDir(), srv.Client()),
		Clock:   clock.NewFixed(now),
	})
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	events, err := p.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 feed events, got %+v", events)
	}

	summit, day := events[0], events[1]
	if day.Name != "Workshop Day" || !day.EndDate.IsZero() {
		t.Fatalf("one-day event should have no end date, got %+v", day)
	}
	if summit.Name != "Summit" {
		t.Fatalf("unexpected order %+v", events)
	}
	if y, m, d := summit.EndDate.Date(); y != 2024 || m != time.July || d != 3 {
		t.Fatalf("expected last day July 3, got %s", summit.EndDate)
	}

	out := ics.Export(events, ics.ExportOptions{BaseURL: "https://example.com", Stamp: now})
	parsed, err := ics.ParseICS(ics.Source{ID: "self"}, []byte(out))
	if err != nil {
		t.Fatalf("ParseICS(export): %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 exported events, got %d", len(parsed))
	}
	want := map[string]time.Duration{
		"Summit":       3 * 24 * time.Hour,
		"Workshop Day": 24 * time.Hour,
	}
	for _, ev := range parsed {
		if !ev.AllDay {
			t.Fatalf("%s: expected all-day export", ev.Summary)
		}
		if got := ev.End.Sub(ev.Start); got != want[ev.Summary] {
			t.Errorf("%s: exported span %s, want %s", ev.Summary, got, want[ev.Summary])
		}
	}
}
