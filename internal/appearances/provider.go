// Package appearances assembles the list of events shown on the site from
// local appearance documents and subscribed ICS feeds.
package appearances

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"folio/internal/clock"
	"folio/internal/config"
	"folio/internal/ics"
	appLog "folio/internal/log"
	"folio/internal/model"
)

// ContentSourceID is the SourceID of events defined in content files.
const ContentSourceID = "content"

// DocumentLister is the part of the content store the provider reads.
type DocumentLister interface {
	List(kind model.Kind) []*model.Document
}

// Options configures a Provider.
type Options struct {
	Feeds   []config.FeedConfig
	Fetcher *ics.Fetcher
	Clock   clock.Clock
	// Location is used for recurrence expansion; nil means UTC.
	Location *time.Location

	BackfillDays int
	HorizonDays  int
}

// Provider merges content appearances with the last good snapshot of
// every feed.
type Provider struct {
	docs    DocumentLister
	feeds   []config.FeedConfig
	fetcher *ics.Fetcher
	clock   clock.Clock
	loc     *time.Location

	backfill time.Duration
	horizon  time.Duration

	mu          sync.RWMutex
	feedEvents  map[string][]model.Event
	refreshedAt time.Time
}

func NewProvider(docs DocumentLister, opts Options) *Provider {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem(loc)
	}
	backfill, horizon := opts.BackfillDays, opts.HorizonDays
	if backfill <= 0 {
		backfill = 365
	}
	if horizon <= 0 {
		horizon = 365
	}
	return &Provider{
		docs:       docs,
		feeds:      opts.Feeds,
		fetcher:    opts.Fetcher,
		clock:      clk,
		loc:        loc,
		backfill:   time.Duration(backfill) * 24 * time.Hour,
		horizon:    time.Duration(horizon) * 24 * time.Hour,
		feedEvents: make(map[string][]model.Event),
	}
}

// window is the range recurring and feed events are expanded in.
func (p *Provider) window() (time.Time, time.Time) {
	now := p.clock.Now()
	return now.Add(-p.backfill), now.Add(p.horizon)
}

// ListEvents returns every known appearance ordered by descending start
// date. IDs are unique within the result.
func (p *Provider) ListEvents(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := p.contentEvents()

	p.mu.RLock()
	for _, f := range p.feeds {
		events = append(events, p.feedEvents[f.SourceID()]...)
	}
	p.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.After(events[j].StartDate)
	})
	uniqueIDs(events)
	return events, nil
}

// ForWorkshop returns the appearances linked to the workshop slug.
func (p *Provider) ForWorkshop(ctx context.Context, slug string) ([]model.Event, error) {
	return p.filter(ctx, func(ev model.Event) bool { return ev.Workshop == slug })
}

// ForTalk returns the appearances linked to the talk slug.
func (p *Provider) ForTalk(ctx context.Context, slug string) ([]model.Event, error) {
	return p.filter(ctx, func(ev model.Event) bool { return ev.Talk == slug })
}

func (p *Provider) filter(ctx context.Context, keep func(model.Event) bool) ([]model.Event, error) {
	all, err := p.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0)
	for _, ev := range all {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// RefreshedAt is when Refresh last completed, zero before the first run.
func (p *Provider) RefreshedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.refreshedAt
}

// Refresh fetches, parses and expands every feed. A feed that fails keeps
// its previous snapshot; the failures are returned joined.
func (p *Provider) Refresh(ctx context.Context) error {
	if len(p.feeds) == 0 {
		return nil
	}
	if p.fetcher == nil {
		return errors.New("appearances: feeds configured without a fetcher")
	}

	sources := make([]ics.Source, 0, len(p.feeds))
	for _, f := range p.feeds {
		sources = append(sources, ics.Source{ID: f.SourceID(), URL: f.URL})
	}

	results, fetchErr := p.fetcher.FetchAll(ctx, sources)
	errs := []error{fetchErr}

	rangeStart, rangeEnd := p.window()
	fresh := make(map[string][]model.Event, len(results))
	for _, res := range results {
		parsed, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", res.Source.ID, err))
			continue
		}
		expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
			DisplayLocation: p.loc,
			RangeStart:      rangeStart,
			RangeEnd:        rangeEnd,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", res.Source.ID, err))
			continue
		}

		events := make([]model.Event, 0, len(expanded.Occurrences))
		for _, occ := range expanded.Occurrences {
			events = append(events, eventFromOccurrence(occ))
		}
		fresh[res.Source.ID] = events
	}

	p.mu.Lock()
	for id, events := range fresh {
		p.feedEvents[id] = events
	}
	p.refreshedAt = p.clock.Now()
	p.mu.Unlock()

	err := errors.Join(errs...)
	appLog.Info("appearance feeds refreshed",
		"feeds", len(p.feeds),
		"updated", len(fresh),
		"failed", err != nil,
	)
	return err
}

func (p *Provider) contentEvents() []model.Event {
	if p.docs == nil {
		return nil
	}
	rangeStart, rangeEnd := p.window()

	out := make([]model.Event, 0)
	for _, doc := range p.docs.List(model.KindAppearance) {
		if doc.Event == nil {
			continue
		}
		fields := doc.Event
		base := model.Event{
			ID:        doc.Slug,
			Name:      fields.Name,
			StartDate: fields.StartDate,
			EndDate:   fields.EndDate,
			Location:  fields.Location,
			URL:       fields.URL,
			Talk:      fields.Talk,
			Workshop:  fields.Workshop,
			SourceID:  ContentSourceID,
		}
		if fields.RRule == "" {
			out = append(out, base)
			continue
		}
		out = append(out, p.expandRecurring(base, fields.RRule, rangeStart, rangeEnd)...)
	}
	return out
}

// expandRecurring turns a recurring appearance into one event per
// occurrence inside the window, each with a date-suffixed ID.
func (p *Provider) expandRecurring(base model.Event, rule string, rangeStart, rangeEnd time.Time) []model.Event {
	end := base.EndDate
	if end.IsZero() {
		end = base.StartDate
	}
	parsed := ics.ParsedEvent{
		Source:   ics.Source{ID: ContentSourceID},
		UID:      base.ID,
		Summary:  base.Name,
		URL:      base.URL,
		Start:    base.StartDate,
		End:      end,
		RawRRule: rule,
	}
	res, err := ics.ExpandOccurrences([]ics.ParsedEvent{parsed}, ics.ExpandConfig{
		DisplayLocation: p.loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("appearance recurrence expansion failed", err, "slug", base.ID)
		return nil
	}

	out := make([]model.Event, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		ev := base
		ev.ID = base.ID + "-" + occ.Start.Format("2006-01-02")
		ev.StartDate = occ.Start
		if base.EndDate.IsZero() {
			ev.EndDate = time.Time{}
		} else {
			ev.EndDate = occ.End
		}
		out = append(out, ev)
	}
	return out
}

func eventFromOccurrence(occ model.Occurrence) model.Event {
	ev := model.Event{
		ID:        feedEventID(occ),
		Name:      occ.Summary,
		StartDate: occ.Start,
		Location:  parseLocation(occ.Location),
		URL:       occ.URL,
		SourceID:  occ.SourceID,
	}
	end := occ.End
	if occ.AllDay {
		// Feed DTEND is exclusive; events carry the last day itself.
		end = end.AddDate(0, 0, -1)
	}
	if end.After(occ.Start) {
		ev.EndDate = end
	}
	return ev
}

// feedEventID derives a stable, URL-safe ID from the occurrence identity.
func feedEventID(occ model.Occurrence) string {
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(occ.UID+"|"+occ.InstanceKey))
	return occ.SourceID + "-" + strings.ReplaceAll(sum.String(), "-", "")[:12]
}

// parseLocation maps "City", "City, Country" and "City, State, Country".
func parseLocation(s string) model.Location {
	var parts []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	switch len(parts) {
	case 0:
		return model.Location{}
	case 1:
		return model.Location{City: parts[0]}
	case 2:
		return model.Location{City: parts[0], Country: parts[1]}
	default:
		return model.Location{
			City:    parts[0],
			State:   strings.Join(parts[1:len(parts)-1], ", "),
			Country: parts[len(parts)-1],
		}
	}
}

// uniqueIDs suffixes repeated IDs with -2, -3, ... in list order.
func uniqueIDs(events []model.Event) {
	seen := make(map[string]int, len(events))
	for i := range events {
		id := events[i].ID
		seen[id]++
		if n := seen[id]; n > 1 {
			candidate := fmt.Sprintf("%s-%d", id, n)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s-%d", id, n)
			}
			seen[id] = n
			seen[candidate] = 1
			events[i].ID = candidate
		}
	}
}
