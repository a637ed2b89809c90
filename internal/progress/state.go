package progress

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum time between broadcast snapshots.
const DefaultInterval = 2 * time.Second

// Snapshot is an immutable view of a transfer at a point in time.
type Snapshot struct {
	Position int64
	Total    int64
	// Rate is the transfer speed in bytes per second, computed from the
	// position delta since the previous broadcast.
	Rate    float64
	Elapsed time.Duration
	Done    bool
}

// Percent returns completion as 0-100, or 0 when the total is unknown.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	pct := float64(s.Position) / float64(s.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ETA estimates the remaining transfer time. Zero when it cannot be known.
func (s Snapshot) ETA() time.Duration {
	if s.Total <= 0 || s.Rate <= 0 || s.Position >= s.Total {
		return 0
	}
	remaining := float64(s.Total-s.Position) / s.Rate
	return time.Duration(remaining * float64(time.Second))
}

// State tracks one transfer. The zero value is not usable; construct with
// New. All methods are safe for concurrent use.
type State struct {
	mu          sync.Mutex
	total       int64
	position    int64
	started     time.Time
	lastEmit    time.Time
	lastEmitPos int64
	interval    time.Duration
	done        bool
	subs        map[int]chan Snapshot
	nextSub     int
	now         func() time.Time
}

// New creates a State for a transfer of total bytes. A non-positive total
// means the size is unknown. A non-positive interval selects
// DefaultInterval.
func New(total int64, interval time.Duration) *State {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &State{
		total:    total,
		interval: interval,
		subs:     make(map[int]chan Snapshot),
		now:      time.Now,
	}
}

// SetTotal records the transfer size once it becomes known, e.g. from a
// Content-Length header or torrent metadata.
func (s *State) SetTotal(total int64) {
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

// Subscribe registers an observer. The returned channel is buffered and
// never blocks the publisher; a slow subscriber misses intermediate
// snapshots rather than stalling the transfer. The cancel func must be
// called when the observer is done.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Publish records the current byte position. A snapshot is broadcast only
// when the reporting interval has elapsed since the last broadcast.
func (s *State) Publish(position int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.started.IsZero() {
		s.started = now
		s.lastEmit = now
	}
	s.position = position

	if s.done || now.Sub(s.lastEmit) < s.interval {
		return
	}
	s.emitLocked(now, false)
}

// Finish marks the transfer complete and broadcasts a final snapshot to all
// subscribers regardless of the interval, then closes their channels.
func (s *State) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true

	now := s.now()
	if s.started.IsZero() {
		s.started = now
		s.lastEmit = now
	}
	s.emitLocked(now, true)
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Snapshot returns the current state without broadcasting.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.now(), 0)
}

// Position returns the last published byte position.
func (s *State) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *State) emitLocked(now time.Time, done bool) {
	var rate float64
	if elapsed := now.Sub(s.lastEmit); elapsed > 0 {
		rate = float64(s.position-s.lastEmitPos) / elapsed.Seconds()
	}
	snap := s.snapshotLocked(now, rate)
	snap.Done = done
	s.lastEmit = now
	s.lastEmitPos = s.position

	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *State) snapshotLocked(now time.Time, rate float64) Snapshot {
	var elapsed time.Duration
	if !s.started.IsZero() {
		elapsed = now.Sub(s.started)
	}
	return Snapshot{
		Position: s.position,
		Total:    s.total,
		Rate:     rate,
		Elapsed:  elapsed,
		Done:     s.done,
	}
}
