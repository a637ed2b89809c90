package daemon

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"aerial/internal/candidate"
	"aerial/internal/config"
	"aerial/internal/ipc"
	"aerial/internal/library"
	"aerial/internal/logging"
	"aerial/internal/media"
	"aerial/internal/scheduler"
	"aerial/internal/search"
	"aerial/internal/testsupport"
)

type stubRetriever struct {
	mu    sync.Mutex
	codes []string
}

func (r *stubRetriever) Retrieve(_ context.Context, _ *media.Series, ep *media.Episode, _ []*candidate.Candidate) (bool, error) {
	r.mu.Lock()
	r.codes = append(r.codes, ep.Code())
	r.mu.Unlock()
	return true, nil
}

func (r *stubRetriever) retrieved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

type stubSearcher struct{}

func (stubSearcher) Name() string         { return "stub" }
func (stubSearcher) Type() candidate.Type { return candidate.TypeHTTP }
func (stubSearcher) AlwaysEnabled() bool  { return true }

func (stubSearcher) Search(_ context.Context, req search.Request) (search.Results, error) {
	results := search.Results{ByEpisode: make(map[*media.Episode][]*candidate.Candidate)}
	for _, ep := range req.Episodes {
		results.ByEpisode[ep] = []*candidate.Candidate{{
			Type:     candidate.TypeHTTP,
			Filename: "Show." + ep.Code() + ".720p.x264.mkv",
			Size:     900 << 20,
		}}
	}
	return results, nil
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *library.Store, *stubRetriever) {
	t.Helper()
	store := testsupport.MustOpenLibrary(t, cfg)

	retriever := &stubRetriever{}
	sched := scheduler.New(scheduler.Options{
		Retriever:    retriever,
		Saver:        store,
		Limit:        2,
		RestartDelay: 10 * time.Millisecond,
	})

	searcher := search.NewDispatcher(search.NewRegistry(stubSearcher{}), nil, 10, logging.NewNop())
	d, err := New(Options{
		Config:    cfg,
		Store:     store,
		Searcher:  searcher,
		Scheduler: sched,
		Logger:    logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sched.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, store, retriever
}

func seedNeededEpisode(t *testing.T, store *library.Store) *media.Episode {
	t.Helper()
	ctx := context.Background()
	series, err := store.AddSeries(ctx, &media.Series{Name: "Show", Quality: media.QualityHD})
	if err != nil {
		t.Fatalf("AddSeries: %v", err)
	}
	ep, err := store.UpsertEpisode(ctx, &media.Episode{
		SeriesID: series.ID,
		Season:   1,
		Number:   1,
		AirDate:  time.Now().AddDate(0, 0, -2),
		Status:   media.StatusNeed,
	})
	if err != nil {
		t.Fatalf("UpsertEpisode: %v", err)
	}
	return ep
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

func TestCheckEnqueuesNeededEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store, retriever := newTestDaemon(t, cfg)
	seedNeededEpisode(t, store)

	d.check(context.Background())

	waitFor(t, "episode dispatch", func() bool { return len(retriever.retrieved()) == 1 })
	if got := retriever.retrieved(); got[0] != "S01E01" {
		t.Fatalf("retrieved = %v", got)
	}
}

func TestCheckSkipsUnairedEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store, retriever := newTestDaemon(t, cfg)

	ctx := context.Background()
	series, err := store.AddSeries(ctx, &media.Series{Name: "Show", Quality: media.QualityHD})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertEpisode(ctx, &media.Episode{
		SeriesID: series.ID,
		Season:   1,
		Number:   5,
		AirDate:  time.Now().AddDate(0, 0, 7),
		Status:   media.StatusNeed,
	}); err != nil {
		t.Fatal(err)
	}

	d.check(ctx)
	time.Sleep(50 * time.Millisecond)
	if got := retriever.retrieved(); len(got) != 0 {
		t.Fatalf("retrieved = %v, want none for future airdate", got)
	}
}

func TestNextCheckTime(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name     string
		now      time.Time
		hours    []int
		wantDay  int
		wantHour int
	}{
		{"before first hour", time.Date(2026, 8, 27, 2, 0, 0, 0, loc), []int{4, 16}, 27, 4},
		{"between hours", time.Date(2026, 8, 27, 10, 0, 0, 0, loc), []int{4, 16}, 27, 16},
		{"after last hour", time.Date(2026, 8, 27, 17, 0, 0, 0, loc), []int{4, 16}, 28, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next := nextCheckTime(tc.now, tc.hours)
			if next.Day() != tc.wantDay || next.Hour() != tc.wantHour {
				t.Fatalf("nextCheckTime = %v, want day %d hour %d", next, tc.wantDay, tc.wantHour)
			}
			if next.Minute() < 0 || next.Minute() > 59 {
				t.Fatalf("minute = %d", next.Minute())
			}
			if !next.After(tc.now) {
				t.Fatalf("next %v not after now %v", next, tc.now)
			}
		})
	}
}

func TestAPIServerEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _, _ := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api, err := newAPIServer(cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	if err := api.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer api.stop()

	client := ipc.New(api.addr(), "")

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.Version != Version {
		t.Fatalf("status = %+v", status)
	}

	if _, err := client.SetLimit(ctx, 4); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	limit, err := client.Limit(ctx)
	if err != nil || limit.Limit != 4 {
		t.Fatalf("Limit = %+v, %v", limit, err)
	}

	if _, err := client.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
	select {
	case <-d.checkNow:
	default:
		t.Fatal("check trigger not recorded")
	}

	if _, err := client.Cancel(ctx, 12345); err == nil {
		t.Fatal("Cancel of unknown episode should fail")
	}

	queue, err := client.Queue(ctx)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if queue.Scheduler.Limit != 4 {
		t.Fatalf("queue snapshot limit = %d", queue.Scheduler.Limit)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	d, _, _ := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api, err := newAPIServer(cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	if err := api.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer api.stop()

	resp, err := http.Get("http://" + api.addr() + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}

	if _, err := ipc.New(api.addr(), "secret").Status(ctx); err != nil {
		t.Fatalf("authenticated Status: %v", err)
	}
}

func TestEventHubFanOut(t *testing.T) {
	hub := newEventHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(map[string]int{"limit": 2})
	select {
	case data := <-events:
		if string(data) != `{"limit":2}` {
			t.Fatalf("event = %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	if _, open := <-events; open {
		t.Fatal("channel still open after cancel")
	}
}
