package logging

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 100

// LogHub fans entries out to live subscribers. A subscriber whose buffer
// is full misses the entry; Broadcast never waits.
type LogHub struct {
	mu      sync.RWMutex
	subs    map[*chan LogEntry]struct{}
	closed  bool
	dropped atomic.Uint64
}

func NewLogHub() *LogHub {
	return &LogHub{subs: make(map[*chan LogEntry]struct{})}
}

// Subscribe returns a channel with room for buffer entries (100 when
// buffer <= 0) and a func that unsubscribes and closes it.
func (h *LogHub) Subscribe(buffer int) (<-chan LogEntry, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan LogEntry, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[&ch] = struct{}{}
	return ch, func() { h.remove(&ch) }
}

func (h *LogHub) remove(key *chan LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[key]; ok {
		delete(h.subs, key)
		close(*key)
	}
}

// Broadcast holds the read lock while sending so remove cannot close a
// channel mid-send.
func (h *LogHub) Broadcast(entry LogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case *ch <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped reports how many entries full subscribers missed.
func (h *LogHub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *LogHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(*ch)
	}
}
