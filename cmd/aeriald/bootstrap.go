package main

import (
	"log/slog"

	"aerial/internal/candidate"
	"aerial/internal/config"
	"aerial/internal/daemon"
	"aerial/internal/library"
	"aerial/internal/media"
	"aerial/internal/notify"
	"aerial/internal/progress"
	"aerial/internal/retrieve"
	"aerial/internal/retrieve/httpget"
	"aerial/internal/retrieve/torrent"
	"aerial/internal/scheduler"
	"aerial/internal/search"
	"aerial/internal/search/easynews"
	"aerial/internal/search/torznab"
)

// buildDaemon assembles the plugin registries and wires the searcher,
// scheduler, retriever, and notifier stack into a daemon. The caller owns
// the returned store.
func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, *library.Store, error) {
	store, err := library.Open(cfg)
	if err != nil {
		return nil, nil, err
	}

	searcher := search.NewDispatcher(
		search.NewRegistry(easynews.New(cfg.Easynews), torznab.New(cfg.Torznab)),
		cfg.Searchers.Enabled,
		cfg.Searchers.EarliestMarginDays,
		logger,
	)

	// The retrieve dispatcher reports attempt starts to the scheduler, and
	// the scheduler drives the dispatcher. Closures break the cycle so both
	// can be constructed in order.
	var sched *scheduler.Scheduler
	retriever := retrieve.NewDispatcher(retrieve.Options{
		Registry:   retrieve.NewRegistry(httpget.New(&retrieve.FFProbeVerifier{}), torrent.New(cfg.Torrent)),
		Enabled:    cfg.Retrievers.Enabled,
		LibraryDir: cfg.Paths.LibraryDir,
		Rename:     cfg.Naming.Rename,
		Saver:      store,
		OnAttempt: func(ep *media.Episode, c *candidate.Candidate, prog *progress.State) {
			sched.AttemptStarted(ep, c, prog)
		},
		Logger: logger,
	})

	notifier := notify.NewDispatcher(
		notify.NewRegistry(notify.NewNtfy(cfg.Ntfy), notify.NewLibraryRefresh(cfg.LibraryRefresh)),
		cfg.Notifiers.Enabled,
		logger,
	)

	var d *daemon.Daemon
	sched = scheduler.New(scheduler.Options{
		Retriever:     retriever,
		Notifier:      notifier,
		Saver:         store,
		Limit:         cfg.Retrievers.Parallel,
		OnStateChange: func() { d.PublishState() },
		Logger:        logger,
	})

	d, err = daemon.New(daemon.Options{
		Config:    cfg,
		Store:     store,
		Searcher:  searcher,
		Scheduler: sched,
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return d, store, nil
}
