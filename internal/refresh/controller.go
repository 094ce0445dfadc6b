// Package refresh turns change notifications into repository state
// refreshes. Metadata changes trigger a full refresh (branch and status);
// worktree changes only re-read status.
package refresh

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gitwatch/internal/event"
	"gitwatch/internal/git"
	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
	"gitwatch/internal/watcher"
)

const (
	defaultDebounce = 150 * time.Millisecond
	debounceKey     = "repository"
)

// Refresher reads repository state. *git.Repository satisfies it.
type Refresher interface {
	Branch() (string, error)
	Status() (git.StatusSummary, error)
}

// Snapshot is the repository state after a refresh.
type Snapshot struct {
	Branch    string            `json:"branch"`
	Status    git.StatusSummary `json:"status"`
	Full      bool              `json:"full"`
	Timestamp time.Time         `json:"timestamp"`
}

func (snapshot Snapshot) Type() string {
	if snapshot.Full {
		return "full_refresh"
	}
	return "status_refresh"
}

type Options struct {
	Debounce time.Duration
	Logger   *logging.Logger
	Metrics  *metrics.Registry
}

// Stats counts refreshes by kind.
type Stats struct {
	Requests  uint64 `json:"requests"`
	Coalesced uint64 `json:"coalesced"`
	Full      uint64 `json:"full"`
	Status    uint64 `json:"status"`
	Failures  uint64 `json:"failures"`
}

// Controller debounces notifications and publishes Snapshots.
type Controller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	refresher Refresher
	logger    *logging.Logger
	debouncer *debouncer
	bus       *event.Bus[Snapshot]

	refreshMutex sync.Mutex
	latestMutex  sync.RWMutex
	latest       Snapshot
	hasLatest    bool

	requests  atomic.Uint64
	coalesced atomic.Uint64
	full      atomic.Uint64
	status    atomic.Uint64
	failures  atomic.Uint64
	closeOnce sync.Once
}

func NewController(ctx context.Context, refresher Refresher, options Options) *Controller {
	if ctx == nil {
		ctx = context.Background()
	}
	if options.Debounce <= 0 {
		options.Debounce = defaultDebounce
	}
	if options.Logger == nil {
		options.Logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}
	derived, cancel := context.WithCancel(ctx)
	controller := &Controller{
		ctx:       derived,
		cancel:    cancel,
		refresher: refresher,
		logger: options.Logger.With(map[string]string{
			"gitwatch.category": "refresh",
			"gitwatch.source":   "backend",
		}),
		debouncer: newDebouncer(options.Debounce),
	}
	controller.bus = event.NewBus[Snapshot](derived, event.BusOptions{
		Name:     "refresh",
		Registry: options.Metrics,
		Logger:   controller.logger,
	})
	go func() {
		<-derived.Done()
		controller.Close()
	}()
	return controller
}

// Run consumes notifications until the channel closes or the controller is
// closed.
func (controller *Controller) Run(notifications <-chan watcher.Notification) {
	if controller == nil {
		return
	}
	for {
		select {
		case <-controller.ctx.Done():
			return
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			controller.Request(notification.Metadata())
		}
	}
}

// Request schedules a debounced refresh.
func (controller *Controller) Request(full bool) {
	if controller == nil || controller.ctx.Err() != nil {
		return
	}
	controller.requests.Add(1)
	if controller.debouncer.schedule(debounceKey, full, controller.flush) {
		controller.coalesced.Add(1)
	}
}

func (controller *Controller) flush(key string) {
	full, ok := controller.debouncer.pop(key)
	if !ok || controller.ctx.Err() != nil {
		return
	}
	if _, err := controller.Refresh(full); err != nil {
		controller.logger.Warn("refresh failed", map[string]string{
			"full":  strconv.FormatBool(full),
			"error": err.Error(),
		})
	}
}

// Refresh reads repository state now and publishes the result. A status
// refresh keeps the last known branch, reading it only when none is known.
func (controller *Controller) Refresh(full bool) (Snapshot, error) {
	if controller == nil || controller.refresher == nil {
		return Snapshot{}, git.ErrNotRepository
	}
	controller.refreshMutex.Lock()
	defer controller.refreshMutex.Unlock()

	previous, known := controller.Latest()
	snapshot := Snapshot{Full: full || !known, Branch: previous.Branch}
	if snapshot.Full {
		branch, err := controller.refresher.Branch()
		if err != nil {
			controller.failures.Add(1)
			return Snapshot{}, err
		}
		snapshot.Branch = branch
	}
	status, err := controller.refresher.Status()
	if err != nil {
		controller.failures.Add(1)
		return Snapshot{}, err
	}
	snapshot.Status = status
	snapshot.Timestamp = time.Now().UTC()

	if snapshot.Full {
		controller.full.Add(1)
	} else {
		controller.status.Add(1)
	}
	controller.latestMutex.Lock()
	controller.latest = snapshot
	controller.hasLatest = true
	controller.latestMutex.Unlock()

	if known && previous.Branch != snapshot.Branch {
		controller.logger.Info("branch changed", map[string]string{
			"from": previous.Branch,
			"to":   snapshot.Branch,
		})
	}
	controller.bus.Publish(snapshot)
	return snapshot, nil
}

func (controller *Controller) Latest() (Snapshot, bool) {
	if controller == nil {
		return Snapshot{}, false
	}
	controller.latestMutex.RLock()
	defer controller.latestMutex.RUnlock()
	return controller.latest, controller.hasLatest
}

func (controller *Controller) Subscribe() (<-chan Snapshot, func()) {
	return controller.bus.Subscribe()
}

func (controller *Controller) Stats() Stats {
	if controller == nil {
		return Stats{}
	}
	return Stats{
		Requests:  controller.requests.Load(),
		Coalesced: controller.coalesced.Load(),
		Full:      controller.full.Load(),
		Status:    controller.status.Load(),
		Failures:  controller.failures.Load(),
	}
}

func (controller *Controller) Close() {
	if controller == nil {
		return
	}
	controller.closeOnce.Do(func() {
		controller.cancel()
		controller.debouncer.stop()
		controller.bus.Close()
	})
}
