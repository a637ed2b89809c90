package progress

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestState(total int64, interval time.Duration) (*State, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	state := New(total, interval)
	state.now = clock.now
	return state, clock
}

func TestPublishThrottlesToInterval(t *testing.T) {
	state, clock := newTestState(1000, time.Second)
	ch, cancel := state.Subscribe()
	defer cancel()

	state.Publish(100)
	clock.advance(200 * time.Millisecond)
	state.Publish(200)
	clock.advance(300 * time.Millisecond)
	state.Publish(300)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot before interval elapsed: %+v", snap)
	default:
	}

	clock.advance(time.Second)
	state.Publish(600)

	snap := <-ch
	if snap.Position != 600 {
		t.Fatalf("Position = %d, want 600", snap.Position)
	}
	if snap.Done {
		t.Fatal("intermediate snapshot marked done")
	}
}

func TestRateComputedFromDelta(t *testing.T) {
	state, clock := newTestState(10_000, time.Second)
	ch, cancel := state.Subscribe()
	defer cancel()

	state.Publish(0)
	clock.advance(2 * time.Second)
	state.Publish(4096)

	snap := <-ch
	if want := 2048.0; snap.Rate != want {
		t.Fatalf("Rate = %v, want %v", snap.Rate, want)
	}
	if got := snap.Percent(); got < 40.9 || got > 41.0 {
		t.Fatalf("Percent = %v", got)
	}
	if snap.ETA() <= 0 {
		t.Fatalf("ETA = %v, want positive", snap.ETA())
	}
}

func TestFinishBroadcastsAndCloses(t *testing.T) {
	state, clock := newTestState(100, time.Minute)
	ch, cancel := state.Subscribe()
	defer cancel()

	state.Publish(50)
	clock.advance(time.Second)
	state.Publish(100)
	state.Finish()

	snap, ok := <-ch
	if !ok {
		t.Fatal("channel closed before final snapshot")
	}
	if !snap.Done || snap.Position != 100 {
		t.Fatalf("final snapshot = %+v", snap)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after Finish")
	}

	// Finish is idempotent.
	state.Finish()
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	state, clock := newTestState(1_000_000, time.Millisecond)
	_, cancel := state.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		clock.advance(10 * time.Millisecond)
		state.Publish(int64(i) * 1000)
	}
	// Reaching here without deadlock is the assertion.
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	state, clock := newTestState(100, time.Millisecond)
	ch, cancel := state.Subscribe()
	cancel()

	clock.advance(time.Second)
	state.Publish(10)
	clock.advance(time.Second)
	state.Publish(20)

	if _, ok := <-ch; ok {
		t.Fatal("received snapshot after unsubscribe")
	}
}

func TestUnknownTotal(t *testing.T) {
	state, _ := newTestState(0, time.Second)
	state.Publish(500)
	snap := state.Snapshot()
	if snap.Percent() != 0 {
		t.Fatalf("Percent = %v, want 0 for unknown total", snap.Percent())
	}
	if snap.ETA() != 0 {
		t.Fatalf("ETA = %v, want 0 for unknown total", snap.ETA())
	}

	state.SetTotal(1000)
	snap = state.Snapshot()
	if snap.Percent() != 50 {
		t.Fatalf("Percent = %v, want 50 after SetTotal", snap.Percent())
	}
}
