package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"aerial/internal/candidate"
	"aerial/internal/logging"
	"aerial/internal/media"
	"aerial/internal/notify"
	"aerial/internal/retrieve"
	"aerial/internal/search"
)

// Run executes the scheduler until ctx is cancelled. A fault in the loop
// itself is logged and the loop restarts after the configured delay; task
// failures are isolated and never reach this level.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		err := s.runLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("scheduler loop fault, restarting", logging.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.restartDelay):
		}
	}
}

func (s *Scheduler) runLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler panic: %v", r)
		}
	}()

	for {
		s.fill(ctx)
		s.flushIfIdle(ctx)

		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case <-s.wake:
		case t := <-s.completions:
			s.finish(ctx, t)
		}
	}
}

// fill starts queued tasks until the active set reaches the limit. The
// queue is re-sorted each pass so items enqueued out of order still
// dispatch airdate-first.
func (s *Scheduler) fill(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.active) >= s.limit || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		sortQueue(s.queue)
		item := s.queue[0]
		s.queue = s.queue[1:]

		ep := item.Episode
		if ep.Status == media.StatusHave {
			ep.Queued = false
			s.mu.Unlock()
			// The check loop filters retrieved episodes, so reaching here
			// means an upstream invariant broke. Drop and carry on.
			s.logger.Warn("already-retrieved episode reached the queue",
				logging.String(logging.FieldSeries, item.Series.Name),
				logging.String(logging.FieldEpisode, ep.Code()))
			continue
		}
		reorderForResume(&item)

		taskCtx, cancel := context.WithCancel(ctx)
		t := &task{item: item, cancel: cancel, requestID: uuid.NewString()}
		s.active[keyOf(ep)] = t
		s.mu.Unlock()

		s.logger.Info("dispatching episode",
			logging.String(logging.FieldRequestID, t.requestID),
			logging.String(logging.FieldSeries, item.Series.Name),
			logging.String(logging.FieldEpisode, ep.Code()),
			logging.Int("candidates", len(item.Candidates)))
		go s.runTask(taskCtx, t)
		s.stateChanged()
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("retrieve panic: %v", r)
		}
		t.cancel()
		s.completions <- t
	}()
	t.retrieved, t.err = s.retriever.Retrieve(ctx, t.item.Series, t.item.Episode, t.item.Candidates)
}

// finish removes a completed task from the active set and classifies its
// outcome: success joins the retrieved batch, cancellation is silent, and
// anything else is logged and raised as an operator alert.
func (s *Scheduler) finish(ctx context.Context, t *task) {
	ep := t.item.Episode
	s.mu.Lock()
	delete(s.active, keyOf(ep))
	ep.Queued = false
	s.mu.Unlock()

	s.persist(ctx, ep)

	switch {
	case t.retrieved:
		s.mu.Lock()
		s.batch = append(s.batch, notify.Retrieved{Series: t.item.Series.Name, Episode: *ep})
		s.mu.Unlock()
	case retrieve.IsCancelled(t.err):
		s.logger.Debug("transfer cancelled",
			logging.String(logging.FieldSeries, t.item.Series.Name),
			logging.String(logging.FieldEpisode, ep.Code()))
	case t.err != nil:
		s.logger.Error("episode retrieve failed",
			logging.String(logging.FieldRequestID, t.requestID),
			logging.String(logging.FieldSeries, t.item.Series.Name),
			logging.String(logging.FieldEpisode, ep.Code()),
			logging.Error(t.err))
		s.alert(ctx, "Retrieve failed",
			fmt.Sprintf("%s %s: %v", t.item.Series.Name, ep.Code(), t.err))
	default:
		s.logger.Info("no candidate retrieved, episode stays wanted",
			logging.String(logging.FieldSeries, t.item.Series.Name),
			logging.String(logging.FieldEpisode, ep.Code()))
	}

	s.stateChanged()
}

// flushIfIdle hands the retrieved batch to the notifiers once the queue
// and active set have both gone empty.
func (s *Scheduler) flushIfIdle(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) != 0 || len(s.active) != 0 || len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	s.logger.Info("retrieve pass complete", logging.Int("episodes", len(batch)))
	if s.notifier != nil {
		go s.notifier.Retrieved(context.WithoutCancel(ctx), batch)
	}
}

// drain waits out in-flight tasks during shutdown. Their contexts are
// already cancelled; completions are still classified so terminal state
// persists.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		remaining := len(s.active)
		s.mu.Unlock()
		if remaining == 0 {
			return
		}
		s.finish(context.Background(), <-s.completions)
	}
}

func (s *Scheduler) persist(ctx context.Context, ep *media.Episode) {
	if s.saver == nil || ep.ID == 0 {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.saver.UpdateEpisode(saveCtx, ep); err != nil {
		s.logger.Warn("failed to persist episode state",
			logging.String(logging.FieldEpisode, ep.Code()),
			logging.Error(err))
	}
}

func (s *Scheduler) alert(ctx context.Context, title, message string) {
	if s.notifier == nil {
		return
	}
	go s.notifier.Alert(context.WithoutCancel(ctx), title, message)
}

// sortQueue orders pending work airdate-ascending with undated episodes
// last, breaking ties by episode code.
func sortQueue(queue []search.WorkItem) {
	sort.SliceStable(queue, func(i, j int) bool {
		return episodeLess(queue[i].Episode, queue[j].Episode)
	})
}

func episodeLess(a, b *media.Episode) bool {
	if a.AirDate.IsZero() != b.AirDate.IsZero() {
		return !a.AirDate.IsZero()
	}
	if !a.AirDate.IsZero() && !a.AirDate.Equal(b.AirDate) {
		return a.AirDate.Before(b.AirDate)
	}
	if a.Season != b.Season {
		return a.Season < b.Season
	}
	return a.Number < b.Number
}

// reorderForResume moves the last-used candidate to the front when a
// partial file exists, so the transfer picks up where it stopped.
func reorderForResume(item *search.WorkItem) {
	ep := item.Episode
	if ep.Filename == "" || ep.LastCandidate == "" {
		return
	}
	for i, c := range item.Candidates {
		if c.String() != ep.LastCandidate {
			continue
		}
		if i > 0 {
			reordered := make([]*candidate.Candidate, 0, len(item.Candidates))
			reordered = append(reordered, c)
			reordered = append(reordered, item.Candidates[:i]...)
			reordered = append(reordered, item.Candidates[i+1:]...)
			item.Candidates = reordered
		}
		return
	}
}
