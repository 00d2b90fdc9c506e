package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/appearances"
	"folio/internal/clock"
	"folio/internal/config"
	"folio/internal/content"
	"folio/internal/ics"
	appLog "folio/internal/log"
)

const version = "0.1.0"

// app is the wiring shared by every subcommand.
type app struct {
	configPath string
	listen     string

	cfg      *config.Config
	clock    clock.Clock
	store    *content.Store
	provider *appearances.Provider
}

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. clk supplies the reference time when --now is
// not given; nil means the system clock.
func newRootCmd(clk clock.Clock) *cobra.Command {
	a := &app{clock: clk}

	root := &cobra.Command{
		Use:           "folio",
		Short:         "Personal website with posts, talks, workshops and appearances",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "Path to config file")

	root.AddCommand(
		newServeCmd(a),
		newEventsCmd(a),
		newICSCmd(a),
	)
	return root
}

// init loads config, applies the log level and builds the content store
// and appearance provider.
func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	if a.listen != "" {
		cfg.Listen = a.listen
	}
	a.cfg = cfg

	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		appLog.Warn("invalid log level, using INFO", "log_level", cfg.LogLevel)
	}
	appLog.SetLevel(level)

	loc := cfg.Location()
	if a.clock == nil {
		a.clock = clock.NewSystem(loc)
	}
	a.store = content.NewStore(cfg.ContentDir, loc)
	if err := a.store.Reload(); err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	a.provider = appearances.NewProvider(a.store, appearances.Options{
		Feeds:        cfg.Feeds,
		Fetcher:      ics.NewFetcher(cfg.CacheDir, nil),
		Clock:        a.clock,
		Location:     loc,
		BackfillDays: cfg.BackfillDays,
		HorizonDays:  cfg.HorizonDays,
	})

	appLog.Info("effective config",
		"version", version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"content_dir", cfg.ContentDir,
		"refresh", cfg.RefreshCron,
		"feeds", len(cfg.Feeds),
		"watch", cfg.Watch,
	)
	return nil
}

// parseReference parses --now, defaulting to the current time.
func parseReference(s string, clk clock.Clock, loc *time.Location) (time.Time, error) {
	if s == "" {
		return clk.Now().In(loc), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --now %q (want RFC3339 or YYYY-MM-DD)", s)
}
