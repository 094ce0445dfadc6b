package refresh

import (
	"sync"
	"time"
)

type debounceEntry struct {
	timer *time.Timer
	full  bool
}

// debouncer coalesces requests per key into one flush after a quiet
// period. A full request is never downgraded by later partial ones.
type debouncer struct {
	mutex    sync.Mutex
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule records a request and reports whether it was merged into one
// already pending.
func (debouncer *debouncer) schedule(key string, full bool, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	if debouncer.entries == nil {
		return false
	}
	entry := debouncer.entries[key]
	coalesced := entry.timer != nil
	entry.full = entry.full || full
	if entry.timer == nil {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(key)
		})
	} else {
		entry.timer.Reset(debouncer.duration)
	}
	debouncer.entries[key] = entry
	return coalesced
}

func (debouncer *debouncer) pop(key string) (bool, bool) {
	if debouncer == nil {
		return false, false
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	entry, ok := debouncer.entries[key]
	if !ok {
		return false, false
	}
	delete(debouncer.entries, key)
	return entry.full, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}
