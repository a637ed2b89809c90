package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"aerial/internal/config"
	"aerial/internal/library"
	"aerial/internal/logging"
	"aerial/internal/notify"
	"aerial/internal/scheduler"
	"aerial/internal/search"
)

// Version is the daemon version reported by the status endpoint.
const Version = "0.1.0"

// Options wires the daemon's collaborators.
type Options struct {
	Config    *config.Config
	Store     *library.Store
	Searcher  *search.Dispatcher
	Scheduler *scheduler.Scheduler
	Notifier  *notify.Dispatcher
	Logger    *slog.Logger
}

// Daemon runs the acquisition pipeline for the process lifetime.
type Daemon struct {
	cfg      *config.Config
	store    *library.Store
	searcher *search.Dispatcher
	sched    *scheduler.Scheduler
	notifier *notify.Dispatcher
	logger   *slog.Logger
	events   *eventHub

	lockPath string
	lock     *flock.Flock

	checkNow chan struct{}
	stop     context.CancelFunc
	started  time.Time

	mu        sync.Mutex
	nextCheck time.Time
}

// New constructs a daemon.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Searcher == nil || opts.Scheduler == nil {
		return nil, errors.New("daemon requires config, store, searcher, and scheduler")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(opts.Config.Paths.LogDir, "aeriald.lock")
	return &Daemon{
		cfg:      opts.Config,
		store:    opts.Store,
		searcher: opts.Searcher,
		sched:    opts.Scheduler,
		notifier: opts.Notifier,
		logger:   logging.WithComponent(logger, "daemon"),
		events:   newEventHub(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		checkNow: make(chan struct{}, 1),
	}, nil
}

// Events exposes the state-changed feed for the scheduler hook and the
// SSE endpoint.
func (d *Daemon) Events() *eventHub { return d.events }

// PublishState pushes the current scheduler snapshot to event
// subscribers. Wired as scheduler.Options.OnStateChange.
func (d *Daemon) PublishState() {
	d.events.Publish(d.sched.Status())
}

// Run acquires the instance lock and blocks until ctx is cancelled or
// Stop is requested through the API. SIGHUP reloads the configuration and
// applies the new concurrency limit.
func (d *Daemon) Run(ctx context.Context, configPath string) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another aerial daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.stop = cancel
	d.started = time.Now()

	pidPath := filepath.Join(d.cfg.Paths.LogDir, "aeriald.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = d.sched.Run(runCtx)
	}()

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	if api != nil {
		if err := api.start(runCtx); err != nil {
			cancel()
			wg.Wait()
			return err
		}
		defer api.stop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-hup:
				d.reloadConfig(configPath)
			}
		}
	}()

	d.logger.Info("aerial daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("limit", d.sched.Limit()))

	// The first check doubles as the startup resume pass: wanted episodes
	// with a partial file re-enter the queue and their last candidate is
	// tried first.
	d.TriggerCheck()
	d.runChecks(runCtx)

	wg.Wait()
	d.logger.Info("aerial daemon stopped")
	return ctx.Err()
}

// TriggerCheck requests an immediate episode check. It never blocks; a
// pending request is enough.
func (d *Daemon) TriggerCheck() {
	select {
	case d.checkNow <- struct{}{}:
	default:
	}
}

// Shutdown stops the daemon from the API.
func (d *Daemon) Shutdown() {
	if d.stop != nil {
		d.stop()
	}
}

// reloadConfig re-reads the config file and applies the hot-reloadable
// settings. Everything else requires a restart.
func (d *Daemon) reloadConfig(configPath string) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		d.logger.Error("config reload failed, keeping current settings", logging.Error(err))
		return
	}
	d.logger.Info("config reloaded", logging.Int("limit", cfg.Retrievers.Parallel))
	d.sched.SetLimit(cfg.Retrievers.Parallel)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}
