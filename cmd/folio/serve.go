package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	appLog "folio/internal/log"
	"folio/internal/schedule"
	"folio/internal/watch"
	"folio/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// serve runs the HTTP server, the feed refresher and (optionally) the
// content watcher until SIGINT/SIGTERM.
func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := web.NewServer(a.cfg, a.store, a.provider, a.clock)
	if err != nil {
		return err
	}

	refresher, err := schedule.NewRefresher("feeds", a.cfg.RefreshCron, a.cfg.Location(), a.provider.Refresh)
	if err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				appLog.Error("component stopped with error", err, "component", name)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				// One failing component takes the process down.
				stop()
			}
		}()
	}

	run("refresher", refresher.Run)
	if a.cfg.Watch {
		w := &watch.Watcher{Dir: a.cfg.ContentDir, Target: a.store}
		run("watcher", w.Run)
	}
	run("http", func(ctx context.Context) error { return web.StartServer(ctx, srv) })

	<-ctx.Done()
	appLog.Info("shutting down")
	wg.Wait()
	appLog.Info("folio exiting")
	return errors.Join(errs...)
}
