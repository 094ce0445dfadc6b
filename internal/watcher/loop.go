package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
)

const coveredOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

func (session *Session) run() {
	defer session.teardown()
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("watch loop panic: %v", recovered)
			session.setErr(err)
			session.logger.Error("watch loop panic", map[string]string{
				"error": err.Error(),
			})
		}
	}()

	var sweep <-chan time.Time
	if session.options.SweepInterval > 0 {
		ticker := time.NewTicker(session.options.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		if len(session.pending) == 0 {
			select {
			case <-session.ctx.Done():
				return
			case event, ok := <-session.watcher.Events:
				if !ok {
					return
				}
				session.pending = append(session.pending, event)
			case err, ok := <-session.watcher.Errors:
				if !ok {
					return
				}
				session.handleError(err)
				continue
			case <-sweep:
				session.sweep()
				continue
			case <-session.rewalkC():
				session.rewalkTimer = nil
				session.rewalk()
				continue
			}
		}
		if session.ctx.Err() != nil {
			return
		}
		session.drain()
		session.processNext()
	}
}

// drain moves already queued events into the pending queue without
// blocking, keeping the queue within DrainLimit.
func (session *Session) drain() {
	for len(session.pending) < session.options.DrainLimit {
		select {
		case event, ok := <-session.watcher.Events:
			if !ok {
				return
			}
			session.pending = append(session.pending, event)
		case err, ok := <-session.watcher.Errors:
			if !ok {
				return
			}
			session.handleError(err)
		default:
			return
		}
	}
}

// processNext takes every pending event that belongs to the head event's
// directory as one batch.
func (session *Session) processNext() {
	if len(session.pending) == 0 {
		return
	}
	head := session.pending[0]
	entry, ok := session.resolve(head.Name)
	if !ok {
		session.pending = session.pending[1:]
		session.logDebug("event for unknown directory skipped", head.Name)
		return
	}

	batch := make([]fsnotify.Event, 0, len(session.pending))
	rest := session.pending[:0]
	for _, event := range session.pending {
		if candidate, ok := session.resolve(event.Name); ok && candidate.handle == entry.handle {
			batch = append(batch, event)
			continue
		}
		rest = append(rest, event)
	}
	session.pending = rest
	session.handleBatch(entry, batch)
}

// resolve maps an event path to the watch that reported it: the parent
// directory, or the path itself when it is a watched directory.
func (session *Session) resolve(path string) (watchEntry, bool) {
	if entry, ok := session.registry.lookup(filepath.Dir(path)); ok {
		return entry, true
	}
	return session.registry.lookup(path)
}

func (session *Session) handleBatch(entry watchEntry, batch []fsnotify.Event) {
	relevant := make([]fsnotify.Event, 0, len(batch))
	for _, event := range batch {
		if event.Op&coveredOps == 0 || session.isExcluded(event.Name) {
			continue
		}
		relevant = append(relevant, event)
	}

	session.batches.Add(1)
	session.metrics.IncBatch(len(relevant) == 0)
	if len(relevant) == 0 {
		session.emptyBatches.Add(1)
	} else if session.ctx.Err() == nil {
		notification := Notification(IsMetadataDir(session.root, session.metadataDir, entry.dir))
		session.bus.Publish(notification)
		session.notifications.Add(1)
	}

	// Removals first: a renamed directory keeps its inode watch, and dropping
	// the old path after arming the new one would disarm both.
	session.rearm(entry, batch)

	if !session.options.DisableAutoRegister {
		for _, event := range relevant {
			if !event.Has(fsnotify.Create) {
				continue
			}
			if _, ok := session.registry.lookup(event.Name); ok {
				session.refreshTree(event.Name)
				continue
			}
			if added := session.registerTree(event.Name); added > 0 {
				session.logDebug("new directory registered", event.Name)
			}
		}
	}
}

// rearm drops watches whose directories were removed or renamed away. The
// path may already exist again; that is a new directory and is registered
// from its Create event. A vanished directory is not an error.
func (session *Session) rearm(entry watchEntry, batch []fsnotify.Event) {
	for _, event := range batch {
		if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
			continue
		}
		if _, ok := session.registry.lookup(event.Name); ok {
			session.dropTree(event.Name)
		}
	}
	if _, ok := session.registry.get(entry.handle); ok && !dirExists(entry.dir) {
		session.dropTree(entry.dir)
	}
}

func (session *Session) dropTree(dir string) {
	for _, entry := range session.registry.removeTree(dir) {
		if err := session.watcher.Remove(entry.dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) && !errors.Is(err, fsnotify.ErrClosed) {
			session.logDebug("watch remove failed", entry.dir)
		}
		session.staleWatches.Add(1)
		session.metrics.IncStaleWatch()
		session.metrics.IncWatchRemoved()
		session.logDebug("stale watch removed", entry.dir)
	}
	if dir == session.root {
		session.logWarn("watch root removed", nil)
	}
}

func (session *Session) handleError(err error) {
	if err == nil {
		return
	}
	session.errorCount.Add(1)
	session.metrics.IncWatcherError()
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		session.metrics.IncOverflow()
		session.logWarn("event queue overflow", map[string]string{
			"pending": strconv.Itoa(len(session.pending)),
		})
	} else {
		session.logWarn("watcher error", map[string]string{
			"error": err.Error(),
		})
	}
	session.scheduleRewalk()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	return info.IsDir()
}
