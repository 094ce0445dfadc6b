package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gitwatch/internal/fsutil"
)

// walkState carries one pre-order walk. ancestors maps directory identities
// on the current branch to the path they were reached through.
type walkState struct {
	ancestors map[string]string
	strict    bool
	refresh   bool
	added     int
	limitHit  bool
}

// registerInitial walks the tree from the root. The root is always watched;
// failing to watch it, or finding a symlink cycle, aborts setup.
func (session *Session) registerInitial() error {
	if _, err := session.addWatch(session.root, session.root); err != nil {
		return &SetupError{Stage: StageWatcher, Path: session.root, Err: err}
	}
	state := &walkState{ancestors: make(map[string]string), strict: true}
	if err := session.walkChildren(state, session.root, session.root); err != nil {
		var setupErr *SetupError
		if errors.As(err, &setupErr) {
			return setupErr
		}
		return &SetupError{Stage: StageWalk, Path: session.root, Err: err}
	}
	return nil
}

// registerTree registers dir and its unwatched descendants after setup.
// Problems are logged and never stop the loop.
func (session *Session) registerTree(dir string) int {
	return session.registerTreeWith(dir, false)
}

// refreshTree is registerTree that also re-arms directories already in the
// registry. A path may now name a different directory than the one its
// watch was armed on; adding it again moves the watch to the current one.
func (session *Session) refreshTree(dir string) int {
	return session.registerTreeWith(dir, true)
}

func (session *Session) registerTreeWith(dir string, refresh bool) int {
	if session.isExcluded(dir) {
		return 0
	}
	if !session.options.FollowSymlinks && !fsutil.IsWithin(session.root, dir) {
		return 0
	}
	identity, ok := session.identityFor(dir)
	if !ok {
		return 0
	}
	state := &walkState{ancestors: session.ancestorsOf(dir), refresh: refresh}
	if err := session.walk(state, dir, identity); err != nil {
		session.logWarn("watch registration failed", map[string]string{
			"path":  dir,
			"error": err.Error(),
		})
	}
	return state.added
}

func (session *Session) walk(state *walkState, dir, identity string) error {
	if state.limitHit || session.isExcluded(dir) {
		return nil
	}
	if previous, ok := state.ancestors[identity]; ok {
		cycleErr := fmt.Errorf("%s resolves to ancestor %s: %w", dir, previous, ErrSymlinkCycle)
		if state.strict {
			return &SetupError{Stage: StageWalk, Path: dir, Err: cycleErr}
		}
		session.logWarn("symlink cycle skipped", map[string]string{
			"path":  dir,
			"error": cycleErr.Error(),
		})
		return nil
	}

	if entry, ok := session.registry.lookup(dir); ok {
		identity = entry.identity
		if state.refresh {
			if err := session.watcher.Add(dir); err != nil {
				session.partialRegistration(dir, err)
			}
		}
	} else {
		if session.registry.hasIdentity(identity) {
			session.logDebug("directory already watched through another path", dir)
			return nil
		}
		added, err := session.addWatch(dir, identity)
		if err != nil {
			if errors.Is(err, ErrMaxWatchesExceeded) {
				state.limitHit = true
				session.logWarn("watch limit reached; remaining directories skipped", map[string]string{
					"path":        dir,
					"max_watches": strconv.Itoa(session.options.MaxWatches),
				})
				return nil
			}
			session.partialRegistration(dir, err)
		} else if added {
			state.added++
		}
	}
	return session.walkChildren(state, dir, identity)
}

func (session *Session) walkChildren(state *walkState, dir, identity string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		session.partialRegistration(dir, err)
		return nil
	}

	state.ancestors[identity] = dir
	defer delete(state.ancestors, identity)

	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		childIdentity := filepath.Join(identity, entry.Name())
		switch {
		case entry.IsDir():
		case entry.Type()&fs.ModeSymlink != 0 && session.options.FollowSymlinks:
			resolved, ok := resolveDirLink(child)
			if !ok {
				continue
			}
			childIdentity = resolved
		default:
			continue
		}
		if err := session.walk(state, child, childIdentity); err != nil {
			return err
		}
	}
	return nil
}

// addWatch arms dir and records it. added is false when the registry
// already held dir, in which case nothing new is watched.
func (session *Session) addWatch(dir, identity string) (added bool, err error) {
	if session.registry.len() >= session.options.MaxWatches {
		session.metrics.IncRegistrationFailure()
		return false, ErrMaxWatchesExceeded
	}
	if err := session.watcher.Add(dir); err != nil {
		return false, err
	}
	if _, ok := session.registry.add(dir, identity); !ok {
		return false, nil
	}
	session.metrics.IncWatchAdded()
	session.logDebug("watch added", dir)
	return true, nil
}

func (session *Session) partialRegistration(dir string, err error) {
	session.registrationFailures.Add(1)
	session.metrics.IncRegistrationFailure()
	session.logWarn("partial registration", map[string]string{
		"path":  dir,
		"error": err.Error(),
	})
}

func (session *Session) isExcluded(path string) bool {
	if _, ok := session.exclusions[path]; ok {
		return true
	}
	for excluded := range session.exclusions {
		if fsutil.IsWithin(excluded, path) {
			return true
		}
	}
	return false
}

// identityFor returns the identity a directory is registered under, derived
// from its parent's identity when the parent is watched.
func (session *Session) identityFor(dir string) (string, bool) {
	info, err := os.Lstat(dir)
	if err != nil {
		return "", false
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		if !session.options.FollowSymlinks {
			return "", false
		}
		return resolveDirLink(dir)
	}
	if !info.IsDir() {
		return "", false
	}
	if parent, ok := session.registry.lookup(filepath.Dir(dir)); ok {
		return filepath.Join(parent.identity, filepath.Base(dir)), true
	}
	return dir, true
}

func (session *Session) ancestorsOf(dir string) map[string]string {
	ancestors := make(map[string]string)
	for current := filepath.Dir(dir); ; current = filepath.Dir(current) {
		if entry, ok := session.registry.lookup(current); ok {
			ancestors[entry.identity] = current
		}
		if current == session.root || filepath.Dir(current) == current {
			break
		}
	}
	return ancestors
}

func resolveDirLink(path string) (string, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return resolved, true
}
