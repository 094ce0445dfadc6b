package watcher

import (
	"time"

	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
)

const (
	NotificationMetadataChanged = "metadata_changed"
	NotificationWorktreeChanged = "worktree_changed"
)

// DefaultMetadataDir is the metadata directory name relative to the root.
const DefaultMetadataDir = ".git"

// Notification reports that something changed under the watch root. True
// means the change happened inside the metadata directory.
type Notification bool

func (notification Notification) Type() string {
	if notification {
		return NotificationMetadataChanged
	}
	return NotificationWorktreeChanged
}

func (notification Notification) Metadata() bool {
	return bool(notification)
}

// Options controls session behavior. Zero values select defaults.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// MetadataDir is relative to the root, or absolute for linked worktrees.
	MetadataDir    string
	FollowSymlinks bool
	// DisableAutoRegister stops the loop from watching directories created
	// after setup.
	DisableAutoRegister bool
	MaxWatches          int
	DrainLimit          int
	// SweepInterval is the period of the stale watch sweep. Negative
	// disables the sweep.
	SweepInterval  time.Duration
	RewalkInterval time.Duration
	BufferSize     int
}

// Metrics reports per-session counters.
type Metrics struct {
	WatchedDirs          int    `json:"watched_dirs"`
	Batches              uint64 `json:"batches"`
	EmptyBatches         uint64 `json:"empty_batches"`
	Notifications        uint64 `json:"notifications"`
	StaleWatches         uint64 `json:"stale_watches"`
	RegistrationFailures uint64 `json:"registration_failures"`
	Rewalks              uint64 `json:"rewalks"`
	Errors               uint64 `json:"errors"`
	Dropped              int64  `json:"dropped"`
}
