package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"trashcal/internal/ics"
	appLog "trashcal/internal/log"
	"trashcal/internal/notify"
	"trashcal/internal/resume"
	"trashcal/internal/scheduler"
	"trashcal/internal/store"
	"trashcal/internal/watch"
	"trashcal/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := openEnv(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()
			if listen != "" {
				e.cfg.Listen = listen
			}
			return serve(ctx, e, !noHTTP)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Run only the notification scheduler")
	return cmd
}

func serve(ctx context.Context, e *env, withHTTP bool) error {
	appLog.Info("trashcal starting",
		"version", version,
		"listen", e.cfg.Listen,
		"timezone", e.loc.String(),
		"store", e.backend.Path(),
		"notifier", e.cfg.Notifier,
		"weekly_day", e.cfg.Weekday().String(),
		"feeds", len(e.cfg.Feeds),
	)

	detector := resume.New(resume.DefaultInterval, resume.DefaultThreshold)
	sched := scheduler.New(e.settings, notify.New(e.cfg.Notifier),
		scheduler.WithLocation(e.loc),
		scheduler.WithWeeklyDay(e.cfg.Weekday()),
		scheduler.WithResume(detector.C()),
	)

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error(name+" stopped", err)
			}
		}()
	}

	goRun("scheduler", func() error { return sched.Run(ctx) })
	goRun("resume detector", func() error { detector.Run(ctx); return nil })

	if fb, ok := e.backend.(*store.FileBackend); ok {
		w, err := watch.New(fb.Path(), watch.DefaultDebounce, func() {
			if err := fb.Reload(); err != nil {
				appLog.Error("settings reload failed", err, "path", fb.Path())
				return
			}
			sched.RequestReschedule()
		})
		if err != nil {
			appLog.Error("settings watcher disabled", err, "path", fb.Path())
		} else {
			goRun("settings watcher", func() error { return w.Run(ctx) })
		}
	}

	resync, err := sched.StartResync(e.cfg.Resync)
	if err != nil {
		appLog.Error("invalid resync spec; periodic resync disabled", err, "spec", e.cfg.Resync)
	} else {
		defer resync.Stop()
	}

	var fetcher *ics.Fetcher
	if len(e.cfg.Feeds) > 0 {
		fetcher = ics.NewFetcher(filepath.Join(e.cfg.DataDir, "ics-cache"))
		refresher, err := startFeedRefresh(ctx, e, fetcher)
		if err != nil {
			appLog.Error("invalid feed_refresh spec; feed refresh disabled", err, "spec", e.cfg.FeedRefresh)
		} else {
			defer refresher.Stop()
		}
	}

	if withHTTP {
		srv := web.NewServer(e.cfg, e.settings, sched, web.WithFetcher(fetcher))
		goRun("HTTP server", func() error { return srv.ListenAndServe(ctx) })
	}

	<-ctx.Done()
	appLog.Info("signal received, shutting down")
	wg.Wait()
	appLog.Info("trashcal exiting")
	return nil
}

// startFeedRefresh keeps the feed cache warm so imports work offline.
func startFeedRefresh(ctx context.Context, e *env, fetcher *ics.Fetcher) (*cron.Cron, error) {
	feeds := make([]ics.Feed, 0, len(e.cfg.Feeds))
	for _, f := range e.cfg.Feeds {
		feeds = append(feeds, ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	refresh := func() {
		results, errs := fetcher.FetchAll(ctx, feeds)
		for _, res := range results {
			events, err := ics.Parse(res.Feed, res.Body, e.loc)
			if err != nil {
				appLog.Error("feed parse failed", err, "id", res.Feed.ID)
				continue
			}
			appLog.Info("feed refreshed", "id", res.Feed.ID, "events", len(events), "from_cache", res.FromCache)
		}
		if len(errs) > 0 {
			appLog.Warn("feed refresh incomplete", "failed", len(errs))
		}
	}

	c := cron.New(cron.WithLocation(e.loc))
	if _, err := c.AddFunc(e.cfg.FeedRefresh, refresh); err != nil {
		return nil, err
	}
	c.Start()
	go refresh()
	return c, nil
}
