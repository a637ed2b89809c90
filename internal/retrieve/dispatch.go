package retrieve

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/logging"
	"aerial/internal/media"
	"aerial/internal/progress"
)

// EpisodeSaver persists episode state changes made while a transfer is in
// flight, so a restart can resume from the last used candidate.
type EpisodeSaver interface {
	UpdateEpisode(ctx context.Context, ep *media.Episode) error
}

// AttemptHook observes each transfer attempt as it starts. The scheduler
// uses it to relay progress outward.
type AttemptHook func(ep *media.Episode, c *candidate.Candidate, prog *progress.State)

// Dispatcher runs the escalation protocol for one episode at a time.
type Dispatcher struct {
	registry *Registry
	enabled  []string
	logger   *slog.Logger

	libraryDir string
	rename     bool

	saver   EpisodeSaver
	onStart AttemptHook

	// interval throttles progress broadcasts for transfers this
	// dispatcher starts.
	interval time.Duration
}

// Options configures a Dispatcher.
type Options struct {
	Registry   *Registry
	Enabled    []string
	LibraryDir string
	Rename     bool
	Saver      EpisodeSaver
	OnAttempt  AttemptHook
	Interval   time.Duration
	Logger     *slog.Logger
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		registry:   opts.Registry,
		enabled:    opts.Enabled,
		logger:     logging.WithComponent(logger, "retrieve"),
		libraryDir: opts.LibraryDir,
		rename:     opts.Rename,
		saver:      opts.Saver,
		onStart:    opts.OnAttempt,
		interval:   opts.Interval,
	}
}

// Retrieve works through the ranked candidates for one episode. It returns
// (true, nil) on success, (false, nil) when every candidate was exhausted
// with only soft failures, and (false, err) when the pass ended with a hard
// failure or cancellation. On success the episode is marked HAVE with its
// filename recorded.
func (d *Dispatcher) Retrieve(ctx context.Context, series *media.Series, ep *media.Episode, candidates []*candidate.Candidate) (bool, error) {
	dir := media.LibraryPath(d.libraryDir, series)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, Wrap(ErrHard, "", "prepare", "create library directory", err)
	}

	var firstHard error
	for _, c := range candidates {
		if ctx.Err() != nil {
			return false, Wrap(ErrAbortHard, "", "", "cancelled before transfer", ctx.Err())
		}

		plugins := d.registry.OrderedFor(d.enabled, c.Type)
		if len(plugins) == 0 {
			if firstHard == nil {
				firstHard = Wrap(ErrNoPlugin, "", "", string(c.Type)+" candidate "+c.String(), nil)
			}
			continue
		}

		dest := filepath.Join(dir, media.LibraryFilename(series, ep, c.String(), d.rename))
		retrieved, err := d.tryCandidate(ctx, plugins, ep, c, dest)
		if retrieved {
			ep.Status = media.StatusHave
			ep.Filename = filepath.Base(dest)
			ep.LastCandidate = c.String()
			d.save(ctx, ep)
			d.logger.Info("retrieved episode",
				logging.String(logging.FieldSeries, series.Name),
				logging.String(logging.FieldEpisode, ep.Code()),
				logging.String(logging.FieldCandidate, c.String()))
			return true, nil
		}
		if err != nil && IsCancelled(err) {
			return false, err
		}
		if err != nil && firstHard == nil {
			firstHard = err
		}
	}

	if firstHard != nil {
		return false, firstHard
	}
	return false, nil
}

// tryCandidate walks eligible plugins for one candidate. It returns
// (true, nil) on success, (false, nil) when the candidate was abandoned
// softly, and (false, err) carrying the first hard error or a cancellation.
func (d *Dispatcher) tryCandidate(ctx context.Context, plugins []Retriever, ep *media.Episode, c *candidate.Candidate, dest string) (bool, error) {
	var firstHard error
	for _, plugin := range plugins {
		// Transient fields let observers and a restarted daemon see what
		// is being attempted.
		ep.Filename = filepath.Base(dest)
		ep.LastCandidate = c.String()
		d.save(ctx, ep)

		prog := progress.New(c.Size, d.interval)
		if d.onStart != nil {
			d.onStart(ep, c, prog)
		}

		d.logger.Info("starting transfer",
			logging.String(logging.FieldRetriever, plugin.Name()),
			logging.String(logging.FieldEpisode, ep.Code()),
			logging.String(logging.FieldCandidate, c.String()))

		err := plugin.Retrieve(ctx, prog, ep, c, dest)
		prog.Finish()

		if err == nil {
			return true, nil
		}

		d.discardPartial(dest)

		if IsCancelled(err) || ctx.Err() != nil {
			d.clearTransient(ctx, ep)
			return false, Wrap(ErrAbortHard, plugin.Name(), "retrieve", "cancelled", err)
		}
		if IsSoft(err) {
			// A soft failure invalidates the candidate itself, so no
			// other plugin gets a shot at it.
			d.logger.Info("transfer failed, trying next candidate",
				logging.String(logging.FieldRetriever, plugin.Name()),
				logging.String(logging.FieldCandidate, c.String()),
				logging.Error(err))
			d.clearTransient(ctx, ep)
			return false, nil
		}

		d.logger.Error("retriever fault, trying next plugin",
			logging.String(logging.FieldRetriever, plugin.Name()),
			logging.String(logging.FieldCandidate, c.String()),
			logging.Error(err))
		if firstHard == nil {
			firstHard = err
		}
	}
	d.clearTransient(ctx, ep)
	return false, firstHard
}

func (d *Dispatcher) clearTransient(ctx context.Context, ep *media.Episode) {
	ep.Filename = ""
	ep.LastCandidate = ""
	d.save(ctx, ep)
}

func (d *Dispatcher) save(ctx context.Context, ep *media.Episode) {
	if d.saver == nil || ep.ID == 0 {
		return
	}
	// Persistence here is best effort; the daemon re-persists terminal
	// state when the task completes.
	saveCtx := ctx
	if saveCtx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := d.saver.UpdateEpisode(saveCtx, ep); err != nil {
		d.logger.Warn("failed to persist episode state", logging.Error(err))
	}
}

func (d *Dispatcher) discardPartial(dest string) {
	if _, err := os.Stat(dest); err != nil {
		return
	}
	if err := os.Remove(dest); err != nil {
		d.logger.Warn("failed to remove partial file",
			logging.String("path", dest),
			logging.Error(err))
	}
}
