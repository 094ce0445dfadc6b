package logging

import "sync"

// LogBuffer keeps the most recent entries for /api/status and for the
// replay sent when a /ws/logs client connects.
type LogBuffer struct {
	mu      sync.Mutex
	slots   []LogEntry
	next    int
	wrapped bool
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{slots: make([]LogEntry, max(size, 1))}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots[b.next] = entry
	b.next++
	if b.next == len(b.slots) {
		b.next = 0
		b.wrapped = true
	}
}

// List returns the retained entries, oldest first.
func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.wrapped {
		if b.next == 0 {
			return nil
		}
		return append([]LogEntry(nil), b.slots[:b.next]...)
	}
	out := make([]LogEntry, 0, len(b.slots))
	out = append(out, b.slots[b.next:]...)
	return append(out, b.slots[:b.next]...)
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wrapped {
		return len(b.slots)
	}
	return b.next
}
