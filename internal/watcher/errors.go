package watcher

import (
	"errors"
	"fmt"

	"gitwatch/internal/fsutil"
)

const (
	StageResolveRoot = "resolve_root"
	StageExclusions  = "exclusions"
	StageWalk        = "walk"
	StageWatcher     = "watcher"
)

var (
	ErrRootNotDirectory   = fsutil.ErrNotDirectory
	ErrSymlinkCycle       = errors.New("symlink cycle")
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrSessionClosed      = errors.New("watch session closed")
)

// SetupError reports why a session could not start. No watches remain
// armed when Start returns one.
type SetupError struct {
	Stage string
	Path  string
	Err   error
}

func (e *SetupError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("watch setup failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("watch setup failed at %s (%s): %v", e.Stage, e.Path, e.Err)
}

func (e *SetupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
