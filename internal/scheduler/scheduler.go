package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/logging"
	"aerial/internal/media"
	"aerial/internal/notify"
	"aerial/internal/progress"
	"aerial/internal/retrieve"
	"aerial/internal/search"
)

const defaultRestartDelay = 5 * time.Second

// EpisodeRetriever runs the per-episode escalation protocol. It returns
// (true, nil) on success, (false, nil) when every candidate was exhausted
// softly, and (false, err) on a hard failure or cancellation.
type EpisodeRetriever interface {
	Retrieve(ctx context.Context, series *media.Series, ep *media.Episode, candidates []*candidate.Candidate) (bool, error)
}

// Notifier receives completed batches and operator alerts.
type Notifier interface {
	Retrieved(ctx context.Context, batch []notify.Retrieved)
	Alert(ctx context.Context, title, message string)
}

// Options configures a Scheduler.
type Options struct {
	Retriever EpisodeRetriever
	Notifier  Notifier
	// Saver persists terminal episode state after each task; may be nil.
	Saver retrieve.EpisodeSaver
	// Limit is the initial concurrency limit; values below 1 become 1.
	Limit int
	// OnStateChange fires after any queue or active-set transition.
	OnStateChange func()
	// RestartDelay is the supervisor backoff before a faulted loop
	// restarts.
	RestartDelay time.Duration
	Logger       *slog.Logger
}

// epKey identifies an episode across store reloads, so the same episode
// loaded twice still counts as one unit of work.
type epKey struct {
	series int64
	season int
	number int
}

func keyOf(ep *media.Episode) epKey {
	return epKey{series: ep.SeriesID, season: ep.Season, number: ep.Number}
}

type task struct {
	item      search.WorkItem
	cancel    context.CancelFunc
	requestID string
	candidate string
	prog      *progress.State
	retrieved bool
	err       error
}

// Scheduler owns the pending queue and the active-task set. All mutations
// go through its mutex; the loop goroutine is the only consumer of the
// wake and completion channels.
type Scheduler struct {
	retriever    EpisodeRetriever
	notifier     Notifier
	saver        retrieve.EpisodeSaver
	onState      func()
	restartDelay time.Duration
	logger       *slog.Logger

	wake        chan struct{}
	completions chan *task

	mu     sync.Mutex
	limit  int
	queue  []search.WorkItem
	active map[epKey]*task
	batch  []notify.Retrieved
}

// New builds a scheduler. Run must be called before enqueued work is
// dispatched.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}
	delay := opts.RestartDelay
	if delay <= 0 {
		delay = defaultRestartDelay
	}
	return &Scheduler{
		retriever:    opts.Retriever,
		notifier:     opts.Notifier,
		saver:        opts.Saver,
		onState:      opts.OnStateChange,
		restartDelay: delay,
		logger:       logging.WithComponent(logger, "scheduler"),
		wake:         make(chan struct{}, 1),
		completions:  make(chan *task, 8),
		limit:        limit,
		active:       make(map[epKey]*task),
	}
}

// Enqueue adds work items to the pending queue, skipping episodes already
// queued or active. It returns how many items were accepted.
func (s *Scheduler) Enqueue(items ...search.WorkItem) int {
	s.mu.Lock()
	queued := make(map[epKey]bool, len(s.queue))
	for _, existing := range s.queue {
		queued[keyOf(existing.Episode)] = true
	}
	added := 0
	for _, item := range items {
		key := keyOf(item.Episode)
		if queued[key] {
			continue
		}
		if _, busy := s.active[key]; busy {
			continue
		}
		item.Episode.Queued = true
		queued[key] = true
		s.queue = append(s.queue, item)
		added++
	}
	s.mu.Unlock()

	if added > 0 {
		s.poke()
	}
	return added
}

// SetLimit changes the concurrency limit. Lowering it never interrupts
// running tasks; the active set drains down to the new limit.
func (s *Scheduler) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	changed := s.limit != limit
	s.limit = limit
	s.mu.Unlock()

	if changed {
		s.logger.Info("concurrency limit changed", logging.Int("limit", limit))
		s.poke()
	}
}

// Limit returns the current concurrency limit.
func (s *Scheduler) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Cancel aborts the active transfer for an episode, or removes it from
// the pending queue. It reports whether the episode was found.
func (s *Scheduler) Cancel(episodeID int64) bool {
	s.mu.Lock()
	for _, t := range s.active {
		if t.item.Episode.ID == episodeID {
			cancel := t.cancel
			s.mu.Unlock()
			cancel()
			return true
		}
	}
	for i, item := range s.queue {
		if item.Episode.ID == episodeID {
			item.Episode.Queued = false
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			s.stateChanged()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// AttemptStarted is the retrieve dispatcher's attempt hook. It records the
// current candidate and progress cell for status snapshots.
func (s *Scheduler) AttemptStarted(ep *media.Episode, c *candidate.Candidate, prog *progress.State) {
	s.mu.Lock()
	if t, ok := s.active[keyOf(ep)]; ok {
		t.candidate = c.String()
		t.prog = prog
	}
	s.mu.Unlock()
	s.stateChanged()
}

// EpisodeStatus describes one queued or active episode for external
// observers.
type EpisodeStatus struct {
	EpisodeID int64     `json:"episode_id"`
	Series    string    `json:"series"`
	Code      string    `json:"code"`
	Title     string    `json:"title,omitempty"`
	AirDate   time.Time `json:"air_date,omitzero"`
	Candidate string    `json:"candidate,omitempty"`
	Position  int64     `json:"position,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Limit  int             `json:"limit"`
	Active []EpisodeStatus `json:"active"`
	Queued []EpisodeStatus `json:"queued"`
}

// Status snapshots the queue, the active set with per-episode progress,
// and the current limit.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Limit: s.limit}
	for _, t := range s.active {
		es := episodeStatus(t.item)
		es.Candidate = t.candidate
		if t.prog != nil {
			snap := t.prog.Snapshot()
			es.Position = snap.Position
			es.Total = snap.Total
			es.Percent = snap.Percent()
		}
		st.Active = append(st.Active, es)
	}
	sort.Slice(st.Active, func(i, j int) bool {
		if st.Active[i].Series != st.Active[j].Series {
			return st.Active[i].Series < st.Active[j].Series
		}
		return st.Active[i].Code < st.Active[j].Code
	})
	for _, item := range s.queue {
		st.Queued = append(st.Queued, episodeStatus(item))
	}
	return st
}

func episodeStatus(item search.WorkItem) EpisodeStatus {
	return EpisodeStatus{
		EpisodeID: item.Episode.ID,
		Series:    item.Series.Name,
		Code:      item.Episode.Code(),
		Title:     item.Episode.Title,
		AirDate:   item.Episode.AirDate,
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) stateChanged() {
	if s.onState != nil {
		s.onState()
	}
}
