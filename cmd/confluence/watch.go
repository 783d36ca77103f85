package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/confluence/internal/backup"
	"github.com/sydlexius/confluence/internal/config"
	"github.com/sydlexius/confluence/internal/event"
	"github.com/sydlexius/confluence/internal/maintenance"
	"github.com/sydlexius/confluence/internal/metrics"
	"github.com/sydlexius/confluence/internal/watcher"
	"github.com/sydlexius/confluence/internal/webhook"
)

func newWatchCommand(a *app) *cobra.Command {
	var pollOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile batch files as they land in the inbox",
		Long: `Watch the configured inbox directory and reconcile each batch file that
appears, moving it to the processed or failed directory afterwards. Edits to
the config file change the log level and output without a restart.

Example:
  CONFLUENCE_INBOX_PATH=/data/inbox confluence watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd.Context(), pollOnly)
		},
	}
	cmd.Flags().BoolVar(&pollOnly, "poll", false, "scan the inbox periodically instead of using filesystem events")
	return cmd
}

func (a *app) watch(ctx context.Context, pollOnly bool) error {
	if a.cfg.Inbox.Path == "" {
		return errors.New("no inbox configured: set inbox.path or CONFLUENCE_INBOX_PATH")
	}

	m := metrics.New()
	bus := event.NewBus(a.logger, 256)
	bus.SubscribeAll(m.CountEvent)
	hooks := webhook.NewDispatcher(a.cfg.Webhooks, a.logger)
	if len(a.cfg.Webhooks) > 0 {
		bus.SubscribeAll(hooks.HandleEvent)
	}
	bus.Subscribe(event.ReviewNeeded, func(e event.Event) {
		a.logger.Info("claims queued for review", "batch_id", e.BatchID, "file", e.File, "count", e.Data["count"])
	})

	engine := a.engine()
	engine.SetObserver(m)
	runner := a.runner(engine)
	runner.SetBus(bus)

	svc := watcher.NewService(watcher.Dirs{
		Inbox:     a.cfg.Inbox.Path,
		Processed: a.cfg.Inbox.ProcessedDir,
		Failed:    a.cfg.Inbox.FailedDir,
	}, func(ctx context.Context, path string) error {
		_, err := runner.RunFile(ctx, path)
		return err
	}, a.logger)
	svc.SetDebounce(a.cfg.Inbox.Debounce)
	svc.SetPollOnly(pollOnly)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(ctx) })
	g.Go(func() error { return svc.Start(ctx) })
	if a.cfg.Metrics.Listen != "" {
		g.Go(func() error { return m.Serve(ctx, a.cfg.Metrics.Listen) })
	}
	if a.cfg.Backup.Interval > 0 {
		snaps := backup.NewService(a.db, a.cfg.Backup.Dir, a.cfg.Backup.Retention, a.logger)
		g.Go(func() error { return snaps.Schedule(ctx, a.cfg.Backup.Interval) })
	}
	if a.cfg.Maintenance.OptimizeInterval > 0 {
		maint := maintenance.NewService(a.db, a.cfg.Database.Path, a.logger)
		g.Go(func() error { return maint.Schedule(ctx, a.cfg.Maintenance.OptimizeInterval) })
	}
	if _, err := os.Stat(filepath.Dir(a.configPath)); err == nil {
		g.Go(func() error {
			return watcher.WatchFile(ctx, a.configPath, a.cfg.Inbox.Debounce, a.reloadLogging, a.logger)
		})
	}

	a.logger.Info("watching inbox", "inbox", a.cfg.Inbox.Path, "metrics", a.cfg.Metrics.Listen)
	err := g.Wait()
	hooks.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watching: %w", err)
	}
	a.logger.Info("stopped watching", "dropped_events", bus.Dropped())
	return nil
}

// reloadLogging re-reads the config file and applies its logging section.
// Other sections need a restart.
func (a *app) reloadLogging() {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.logger.Warn("ignoring config change", "path", a.configPath, "error", err)
		return
	}
	if err := a.logs.Apply(cfg.Logging); err != nil {
		a.logger.Warn("applying logging config", "error", err)
		return
	}
	a.logger.Info("logging reconfigured", "logging", cfg.Logging.String())
}
