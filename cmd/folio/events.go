package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	appLog "folio/internal/log"
	"folio/internal/model"
	"folio/internal/timeline"
)

type eventsFlags struct {
	now     string
	preview int
	offline bool
	json    bool
}

func newEventsCmd(a *app) *cobra.Command {
	var f eventsFlags
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print appearances classified as upcoming or past",
		Long: `Print every appearance split into upcoming and past relative to --now.
With --preview N only the N appearances nearest to --now are shown, the
same selection the home page uses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printEvents(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.now, "now", "", "Reference time (RFC3339 or YYYY-MM-DD); defaults to the current time")
	cmd.Flags().IntVar(&f.preview, "preview", -1, "Only show the N nearest appearances")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "Skip fetching ICS feeds")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print JSON instead of a table")
	return cmd
}

func (a *app) printEvents(ctx context.Context, out io.Writer, f eventsFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ref, err := parseReference(f.now, a.clock, a.cfg.Location())
	if err != nil {
		return err
	}

	if !f.offline {
		if err := a.provider.Refresh(ctx); err != nil {
			// Partial feed data is still worth printing.
			appLog.Warn("feed refresh incomplete", "err", err)
		}
	}
	events, err := a.provider.ListEvents(ctx)
	if err != nil {
		return err
	}

	var p timeline.Preview
	if f.preview >= 0 {
		p = timeline.PreviewUpcoming(events, ref, f.preview)
	} else {
		p.Upcoming, p.Past = timeline.Partition(events, ref)
	}

	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			timeline.Preview
			Reference time.Time `json:"reference"`
		}{p, ref})
	}
	return writeEventTable(out, p, ref)
}

func writeEventTable(out io.Writer, p timeline.Preview, ref time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	section := func(title string, events []model.Event) {
		if len(events) == 0 {
			return
		}
		fmt.Fprintf(tw, "%s (%d)\n", title, len(events))
		for _, ev := range events {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
				ev.StartDate.Format("2006-01-02"),
				humanize.RelTime(ev.StartDate, ref, "ago", "from now"),
				ev.Name,
				ev.Location.Place(),
			)
		}
	}
	section("Upcoming", p.Upcoming)
	section("Past", p.Past)
	if len(p.Upcoming) == 0 && len(p.Past) == 0 {
		fmt.Fprintln(tw, "No appearances.")
	}
	return tw.Flush()
}
