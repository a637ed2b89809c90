package daemon

import (
	"encoding/json"
	"sync"
)

// eventHub fans marshalled state-changed events out to SSE subscribers.
// Publishing never blocks; a slow subscriber misses events instead of
// stalling the scheduler.
type eventHub struct {
	mu      sync.Mutex
	subs    map[int]chan []byte
	nextSub int
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan []byte)}
}

// Publish marshals payload once and offers it to every subscriber.
func (h *eventHub) Publish(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.Lock()
	for _, ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers an event listener. The cancel func must be called
// when the listener goes away.
func (h *eventHub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan []byte, 16)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
