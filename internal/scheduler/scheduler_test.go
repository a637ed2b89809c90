package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/media"
	"aerial/internal/notify"
	"aerial/internal/progress"
	"aerial/internal/retrieve"
	"aerial/internal/search"
)

type result struct {
	retrieved bool
	err       error
}

// fakeRetriever records dispatch order and concurrency, optionally
// blocking each episode on a gate channel until the test releases it.
type fakeRetriever struct {
	mu         sync.Mutex
	started    []string
	candidates map[string][]string
	gates      map[string]chan struct{}
	results    map[string]result
	activeNow  int
	maxActive  int
}

func newFakeRetriever() *fakeRetriever {
	return &fakeRetriever{
		candidates: make(map[string][]string),
		gates:      make(map[string]chan struct{}),
		results:    make(map[string]result),
	}
}

func (f *fakeRetriever) gate(code string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[code] = ch
	return ch
}

func (f *fakeRetriever) Retrieve(ctx context.Context, _ *media.Series, ep *media.Episode, cs []*candidate.Candidate) (bool, error) {
	code := ep.Code()
	f.mu.Lock()
	f.started = append(f.started, code)
	f.activeNow++
	if f.activeNow > f.maxActive {
		f.maxActive = f.activeNow
	}
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.String()
	}
	f.candidates[code] = names
	gate := f.gates[code]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.activeNow--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, retrieve.Wrap(retrieve.ErrAbortHard, "", "", "cancelled", ctx.Err())
		}
	}

	f.mu.Lock()
	res, ok := f.results[code]
	f.mu.Unlock()
	if !ok {
		return true, nil
	}
	return res.retrieved, res.err
}

func (f *fakeRetriever) startedCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]notify.Retrieved
	alerts  []string
}

func (f *fakeNotifier) Retrieved(_ context.Context, batch []notify.Retrieved) {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
}

func (f *fakeNotifier) Alert(_ context.Context, title, _ string) {
	f.mu.Lock()
	f.alerts = append(f.alerts, title)
	f.mu.Unlock()
}

func (f *fakeNotifier) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

var nextEpisodeID int64 = 100

func workItem(season, number int, airDate time.Time) search.WorkItem {
	nextEpisodeID++
	ep := &media.Episode{
		ID:       nextEpisodeID,
		SeriesID: 1,
		Season:   season,
		Number:   number,
		AirDate:  airDate,
		Status:   media.StatusNeed,
	}
	return search.WorkItem{
		Series:  &media.Series{ID: 1, Name: "Show", Quality: media.QualityHD},
		Episode: ep,
		Candidates: []*candidate.Candidate{
			{Type: candidate.TypeHTTP, Filename: "Show." + ep.Code() + ".720p.mkv"},
		},
	}
}

func startScheduler(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	if opts.RestartDelay == 0 {
		opts.RestartDelay = 10 * time.Millisecond
	}
	s := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func day(n int) time.Time {
	return time.Date(2026, time.January, n, 0, 0, 0, 0, time.UTC)
}

func TestDispatchRespectsLimit(t *testing.T) {
	r := newFakeRetriever()
	g1 := r.gate("S01E01")
	g2 := r.gate("S01E02")
	r.gate("S01E03")
	s := startScheduler(t, Options{Retriever: r, Limit: 2})

	s.Enqueue(workItem(1, 1, day(1)), workItem(1, 2, day(2)), workItem(1, 3, day(3)))

	waitFor(t, "two tasks active", func() bool { return len(r.startedCodes()) == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := r.startedCodes(); len(got) != 2 {
		t.Fatalf("started = %v, want exactly two while slots are full", got)
	}

	close(g1)
	waitFor(t, "third dispatch", func() bool { return len(r.startedCodes()) == 3 })
	close(g2)

	if r.maxActive > 2 {
		t.Fatalf("maxActive = %d, limit was 2", r.maxActive)
	}
}

func TestAirdateOrderingUndatedLast(t *testing.T) {
	r := newFakeRetriever()
	s := startScheduler(t, Options{Retriever: r, Limit: 1})

	// Enqueued out of order; an undated special must dispatch last.
	s.Enqueue(
		workItem(1, 9, time.Time{}),
		workItem(1, 3, day(3)),
		workItem(1, 1, day(1)),
		workItem(1, 2, day(2)),
	)

	waitFor(t, "all dispatched", func() bool { return len(r.startedCodes()) == 4 })
	want := []string{"S01E01", "S01E02", "S01E03", "S01E09"}
	got := r.startedCodes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestDuplicateEnqueueIgnored(t *testing.T) {
	r := newFakeRetriever()
	gate := r.gate("S01E01")
	s := startScheduler(t, Options{Retriever: r, Limit: 2})

	item := workItem(1, 1, day(1))
	if added := s.Enqueue(item); added != 1 {
		t.Fatalf("first Enqueue = %d", added)
	}
	waitFor(t, "dispatch", func() bool { return len(r.startedCodes()) == 1 })

	// Same identity, freshly loaded from the store.
	again := workItem(1, 1, day(1))
	again.Episode.SeriesID = item.Episode.SeriesID
	if added := s.Enqueue(again); added != 0 {
		t.Fatalf("duplicate Enqueue = %d, want 0", added)
	}

	close(gate)
	waitFor(t, "completion", func() bool {
		return len(s.Status().Active) == 0
	})
	if got := r.startedCodes(); len(got) != 1 {
		t.Fatalf("started = %v, want single dispatch", got)
	}
}

func TestLoweredLimitDrainsWithoutKilling(t *testing.T) {
	r := newFakeRetriever()
	g1 := r.gate("S01E01")
	g2 := r.gate("S01E02")
	s := startScheduler(t, Options{Retriever: r, Limit: 2})

	s.Enqueue(workItem(1, 1, day(1)), workItem(1, 2, day(2)), workItem(1, 3, day(3)))
	waitFor(t, "two active", func() bool { return len(r.startedCodes()) == 2 })

	s.SetLimit(1)
	close(g1)
	waitFor(t, "first completion", func() bool { return len(s.Status().Active) == 1 })

	// One task still runs at the new limit of 1, so E3 must wait.
	time.Sleep(50 * time.Millisecond)
	if len(r.startedCodes()) != 2 {
		t.Fatalf("started = %v, want E3 held back", r.startedCodes())
	}

	close(g2)
	waitFor(t, "third dispatch", func() bool { return len(r.startedCodes()) == 3 })
	if r.maxActive > 2 {
		t.Fatalf("maxActive = %d", r.maxActive)
	}
}

func TestAlreadyRetrievedEpisodeDropped(t *testing.T) {
	r := newFakeRetriever()
	s := startScheduler(t, Options{Retriever: r, Limit: 1})

	have := workItem(1, 1, day(1))
	have.Episode.Status = media.StatusHave
	s.Enqueue(have, workItem(1, 2, day(2)))

	waitFor(t, "E2 dispatch", func() bool { return len(r.startedCodes()) == 1 })
	if got := r.startedCodes(); got[0] != "S01E02" {
		t.Fatalf("started = %v, want only S01E02", got)
	}
	if have.Episode.Queued {
		t.Fatal("dropped episode still marked queued")
	}
}

func TestResumeCandidateMovedToFront(t *testing.T) {
	r := newFakeRetriever()
	s := startScheduler(t, Options{Retriever: r, Limit: 1})

	item := workItem(1, 1, day(1))
	item.Candidates = []*candidate.Candidate{
		{Type: candidate.TypeHTTP, Filename: "first.mkv"},
		{Type: candidate.TypeHTTP, Filename: "resume-me.mkv"},
		{Type: candidate.TypeHTTP, Filename: "third.mkv"},
	}
	item.Episode.Filename = "Show S01E01.mkv"
	item.Episode.LastCandidate = "resume-me.mkv"

	s.Enqueue(item)
	waitFor(t, "dispatch", func() bool { return len(r.startedCodes()) == 1 })

	r.mu.Lock()
	got := r.candidates["S01E01"]
	r.mu.Unlock()
	want := []string{"resume-me.mkv", "first.mkv", "third.mkv"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidates = %v, want %v", got, want)
		}
	}
}

func TestBatchFlushedWhenIdle(t *testing.T) {
	r := newFakeRetriever()
	n := &fakeNotifier{}
	s := startScheduler(t, Options{Retriever: r, Notifier: n, Limit: 2})

	s.Enqueue(workItem(1, 1, day(1)), workItem(1, 2, day(2)))

	waitFor(t, "batch flush", func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.batches) == 1
	})
	n.mu.Lock()
	batch := n.batches[0]
	n.mu.Unlock()
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	if batch[0].Series != "Show" {
		t.Fatalf("batch entry = %+v", batch[0])
	}
}

func TestHardFailureRaisesAlertSoftStaysSilent(t *testing.T) {
	r := newFakeRetriever()
	n := &fakeNotifier{}
	r.results["S01E01"] = result{err: retrieve.Wrap(retrieve.ErrHard, "http", "get", "bad config", nil)}
	r.results["S01E02"] = result{} // exhausted softly: (false, nil)
	s := startScheduler(t, Options{Retriever: r, Notifier: n, Limit: 1})

	e1 := workItem(1, 1, day(1))
	e2 := workItem(1, 2, day(2))
	s.Enqueue(e1, e2)

	waitFor(t, "both processed", func() bool {
		st := s.Status()
		return len(r.startedCodes()) == 2 && len(st.Active) == 0
	})
	waitFor(t, "alert", func() bool { return n.alertCount() == 1 })

	// The soft exhaustion leaves the episode wanted with no second alert.
	time.Sleep(50 * time.Millisecond)
	if n.alertCount() != 1 {
		t.Fatalf("alerts = %d, want 1", n.alertCount())
	}
	if e2.Episode.Status != media.StatusNeed {
		t.Fatalf("E2 status = %v, want need", e2.Episode.Status)
	}
}

func TestCancelActiveTaskIsSilent(t *testing.T) {
	r := newFakeRetriever()
	n := &fakeNotifier{}
	r.gate("S01E01")
	s := startScheduler(t, Options{Retriever: r, Notifier: n, Limit: 1})

	item := workItem(1, 1, day(1))
	s.Enqueue(item)
	waitFor(t, "dispatch", func() bool { return len(r.startedCodes()) == 1 })

	if !s.Cancel(item.Episode.ID) {
		t.Fatal("Cancel did not find the active episode")
	}
	waitFor(t, "task gone", func() bool { return len(s.Status().Active) == 0 })

	time.Sleep(50 * time.Millisecond)
	if n.alertCount() != 0 {
		t.Fatalf("alerts = %d after expected cancellation", n.alertCount())
	}
	if item.Episode.Queued {
		t.Fatal("cancelled episode still marked queued")
	}
}

func TestCancelQueuedEpisode(t *testing.T) {
	r := newFakeRetriever()
	gate := r.gate("S01E01")
	s := startScheduler(t, Options{Retriever: r, Limit: 1})

	e1 := workItem(1, 1, day(1))
	e2 := workItem(1, 2, day(2))
	s.Enqueue(e1, e2)
	waitFor(t, "E1 active", func() bool { return len(r.startedCodes()) == 1 })

	if !s.Cancel(e2.Episode.ID) {
		t.Fatal("Cancel did not find the queued episode")
	}
	close(gate)

	waitFor(t, "drained", func() bool {
		st := s.Status()
		return len(st.Active) == 0 && len(st.Queued) == 0
	})
	if got := r.startedCodes(); len(got) != 1 {
		t.Fatalf("started = %v, cancelled queue entry was dispatched", got)
	}
	if s.Cancel(999999) {
		t.Fatal("Cancel found an unknown episode")
	}
}

func TestStatusExposesProgress(t *testing.T) {
	r := newFakeRetriever()
	gate := r.gate("S01E01")
	s := startScheduler(t, Options{Retriever: r, Limit: 1})

	e1 := workItem(1, 1, day(1))
	e2 := workItem(1, 2, day(2))
	s.Enqueue(e1, e2)
	waitFor(t, "E1 active", func() bool { return len(s.Status().Active) == 1 })

	prog := progress.New(1024, time.Minute)
	s.AttemptStarted(e1.Episode, e1.Candidates[0], prog)
	prog.Publish(512)

	st := s.Status()
	if st.Limit != 1 {
		t.Fatalf("Limit = %d", st.Limit)
	}
	if len(st.Active) != 1 || st.Active[0].Code != "S01E01" {
		t.Fatalf("Active = %+v", st.Active)
	}
	if st.Active[0].Candidate != e1.Candidates[0].String() {
		t.Fatalf("Candidate = %q", st.Active[0].Candidate)
	}
	if st.Active[0].Position != 512 || st.Active[0].Total != 1024 {
		t.Fatalf("progress = %d/%d", st.Active[0].Position, st.Active[0].Total)
	}
	if len(st.Queued) != 1 || st.Queued[0].Code != "S01E02" {
		t.Fatalf("Queued = %+v", st.Queued)
	}
	close(gate)
}

func TestSupervisorRestartsAfterHookPanic(t *testing.T) {
	r := newFakeRetriever()
	var hookCalls int
	var hookMu sync.Mutex
	s := startScheduler(t, Options{
		Retriever: r,
		Limit:     1,
		OnStateChange: func() {
			hookMu.Lock()
			hookCalls++
			calls := hookCalls
			hookMu.Unlock()
			if calls == 1 {
				panic("observer exploded")
			}
		},
	})

	s.Enqueue(workItem(1, 1, day(1)))
	waitFor(t, "work survives the fault", func() bool { return len(r.startedCodes()) >= 1 })

	// The loop must come back and keep dispatching after the restart.
	s.Enqueue(workItem(1, 2, day(2)))
	waitFor(t, "post-restart dispatch", func() bool { return len(r.startedCodes()) == 2 })
}
