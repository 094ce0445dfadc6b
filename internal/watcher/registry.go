package watcher

import (
	"sort"
	"sync"

	"gitwatch/internal/fsutil"
)

// Handle identifies one registered directory watch.
type Handle uint64

type watchEntry struct {
	handle   Handle
	dir      string
	identity string
}

// registry maps handles to watched directories. Once the event loop starts
// it is the only writer; the lock exists for readers on other goroutines.
type registry struct {
	mutex      sync.RWMutex
	byHandle   map[Handle]watchEntry
	byDir      map[string]Handle
	byIdentity map[string]Handle
	nextID     Handle
}

func newRegistry() *registry {
	return &registry{
		byHandle:   make(map[Handle]watchEntry),
		byDir:      make(map[string]Handle),
		byIdentity: make(map[string]Handle),
	}
}

// add registers dir under identity. It returns false when either the
// directory or its identity is already registered.
func (registry *registry) add(dir, identity string) (Handle, bool) {
	if identity == "" {
		identity = dir
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, ok := registry.byDir[dir]; ok {
		return 0, false
	}
	if _, ok := registry.byIdentity[identity]; ok {
		return 0, false
	}
	registry.nextID++
	handle := registry.nextID
	registry.byHandle[handle] = watchEntry{handle: handle, dir: dir, identity: identity}
	registry.byDir[dir] = handle
	registry.byIdentity[identity] = handle
	return handle, true
}

func (registry *registry) lookup(dir string) (watchEntry, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	handle, ok := registry.byDir[dir]
	if !ok {
		return watchEntry{}, false
	}
	return registry.byHandle[handle], true
}

func (registry *registry) hasIdentity(identity string) bool {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	_, ok := registry.byIdentity[identity]
	return ok
}

func (registry *registry) get(handle Handle) (watchEntry, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	entry, ok := registry.byHandle[handle]
	return entry, ok
}

func (registry *registry) remove(handle Handle) (watchEntry, bool) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.removeLocked(handle)
}

func (registry *registry) removeLocked(handle Handle) (watchEntry, bool) {
	entry, ok := registry.byHandle[handle]
	if !ok {
		return watchEntry{}, false
	}
	delete(registry.byHandle, handle)
	delete(registry.byDir, entry.dir)
	delete(registry.byIdentity, entry.identity)
	return entry, true
}

// removeTree drops dir and every registered directory below it, deepest
// first.
func (registry *registry) removeTree(dir string) []watchEntry {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	var handles []Handle
	for path, handle := range registry.byDir {
		if fsutil.IsWithin(dir, path) {
			handles = append(handles, handle)
		}
	}
	removed := make([]watchEntry, 0, len(handles))
	for _, handle := range handles {
		if entry, ok := registry.removeLocked(handle); ok {
			removed = append(removed, entry)
		}
	}
	sort.Slice(removed, func(i, j int) bool {
		return len(removed[i].dir) > len(removed[j].dir)
	})
	return removed
}

func (registry *registry) clear() []watchEntry {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	entries := make([]watchEntry, 0, len(registry.byHandle))
	for _, entry := range registry.byHandle {
		entries = append(entries, entry)
	}
	registry.byHandle = make(map[Handle]watchEntry)
	registry.byDir = make(map[string]Handle)
	registry.byIdentity = make(map[string]Handle)
	return entries
}

func (registry *registry) dirs() []string {
	registry.mutex.RLock()
	dirs := make([]string, 0, len(registry.byDir))
	for dir := range registry.byDir {
		dirs = append(dirs, dir)
	}
	registry.mutex.RUnlock()
	sort.Strings(dirs)
	return dirs
}

func (registry *registry) len() int {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return len(registry.byHandle)
}
