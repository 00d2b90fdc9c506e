package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"folio/internal/ics"
	appLog "folio/internal/log"
)

func newICSCmd(a *app) *cobra.Command {
	var (
		out     string
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "ics",
		Short: "Export all appearances as an iCalendar file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.exportICS(cmd.Context(), cmd.OutOrStdout(), out, offline)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip fetching ICS feeds")
	return cmd
}

func (a *app) exportICS(ctx context.Context, stdout io.Writer, out string, offline bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !offline {
		if err := a.provider.Refresh(ctx); err != nil {
			appLog.Warn("feed refresh incomplete", "err", err)
		}
	}
	events, err := a.provider.ListEvents(ctx)
	if err != nil {
		return err
	}

	body := ics.Export(events, ics.ExportOptions{
		Name:    strings.TrimSpace(a.cfg.Site.Name + " Appearances"),
		BaseURL: a.cfg.BaseURL,
		Stamp:   a.store.LoadedAt(),
	})

	if out == "" {
		_, err := io.WriteString(stdout, body)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
		return err
	}
	appLog.Info("calendar written", "path", out, "events", len(events), "size", humanize.Bytes(uint64(len(body))))
	return nil
}
