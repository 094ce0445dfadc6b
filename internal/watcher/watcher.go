package watcher

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gitwatch/internal/event"
	"gitwatch/internal/fsutil"
	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	defaultMaxWatches     = 8192
	defaultDrainLimit     = 256
	defaultSweepInterval  = time.Minute
	defaultRewalkInterval = 2 * time.Second
)

// Session is one running watch over a root directory.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	root        string
	metadataDir string
	exclusions  map[string]struct{}
	options     Options
	logger      *logging.Logger
	metrics     *metrics.Registry

	watcher  *fsnotify.Watcher
	registry *registry
	bus      *event.Bus[Notification]
	limiter  *rate.Limiter

	// Owned by the loop goroutine.
	pending     []fsnotify.Event
	rewalkTimer *time.Timer

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	errMutex  sync.Mutex
	err       error

	batches              atomic.Uint64
	emptyBatches         atomic.Uint64
	notifications        atomic.Uint64
	staleWatches         atomic.Uint64
	registrationFailures atomic.Uint64
	rewalks              atomic.Uint64
	errorCount           atomic.Uint64
}

// Start resolves root, registers watches for every reachable directory not
// covered by excluded (paths relative to root) and starts the event loop.
// The loop runs until ctx is cancelled or Close is called. Only *SetupError
// is returned.
func Start(ctx context.Context, root string, excluded []string, options Options) (*Session, error) {
	session, err := newSession(ctx, root, excluded, options)
	if err != nil {
		return nil, err
	}
	go session.run()
	return session, nil
}

func newSession(ctx context.Context, root string, excluded []string, options Options) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	options = options.withDefaults()

	resolved, err := fsutil.ResolveRoot(root)
	if err != nil {
		return nil, &SetupError{Stage: StageResolveRoot, Path: root, Err: err}
	}
	exclusions, skipped, err := fsutil.ResolveExclusions(resolved, excluded)
	if err != nil {
		return nil, &SetupError{Stage: StageExclusions, Path: resolved, Err: err}
	}

	logger := options.Logger.With(map[string]string{
		"gitwatch.category": "watcher",
		"gitwatch.source":   "backend",
		"root":              resolved,
	})
	for _, value := range skipped {
		logger.Warn("exclusion names the watch root; ignored", map[string]string{
			"exclusion": value,
		})
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &SetupError{Stage: StageWatcher, Path: resolved, Err: err}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		ctx:         sessionCtx,
		cancel:      cancel,
		root:        resolved,
		metadataDir: options.MetadataDir,
		exclusions:  exclusions,
		options:     options,
		logger:      logger,
		metrics:     options.Metrics,
		watcher:     source,
		registry:    newRegistry(),
		limiter:     rate.NewLimiter(rate.Every(options.RewalkInterval), 1),
		done:        make(chan struct{}),
	}
	session.bus = event.NewBus[Notification](sessionCtx, event.BusOptions{
		Name:                 "notifications",
		SubscriberBufferSize: options.BufferSize,
		Registry:             options.Metrics,
		Logger:               logger,
	})

	if err := session.registerInitial(); err != nil {
		session.teardown()
		return nil, err
	}
	logger.Info("watch session started", map[string]string{
		"watched_dirs": strconv.Itoa(session.registry.len()),
		"exclusions":   strconv.Itoa(len(exclusions)),
	})
	return session, nil
}

func (options Options) withDefaults() Options {
	if options.Logger == nil {
		options.Logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}
	if options.Metrics == nil {
		options.Metrics = metrics.Default
	}
	if options.MetadataDir == "" {
		options.MetadataDir = DefaultMetadataDir
	}
	if options.MaxWatches <= 0 {
		options.MaxWatches = defaultMaxWatches
	}
	if options.DrainLimit <= 0 {
		options.DrainLimit = defaultDrainLimit
	}
	if options.SweepInterval == 0 {
		options.SweepInterval = defaultSweepInterval
	}
	if options.RewalkInterval <= 0 {
		options.RewalkInterval = defaultRewalkInterval
	}
	return options
}

// Subscribe returns a channel of notifications published from now on and a
// cancel func. The channel is closed when the session ends.
func (session *Session) Subscribe() (<-chan Notification, func()) {
	return session.SubscribeFiltered(nil)
}

func (session *Session) SubscribeFiltered(filter func(Notification) bool) (<-chan Notification, func()) {
	if session == nil || session.bus == nil {
		ch := make(chan Notification)
		close(ch)
		return ch, func() {}
	}
	return session.bus.SubscribeFiltered(filter)
}

// Close stops the loop and waits for every watch to be released. It is safe
// to call more than once.
func (session *Session) Close() error {
	if session == nil {
		return nil
	}
	session.cancel()
	<-session.done
	return session.closeErr
}

// Done is closed once the session has released its resources.
func (session *Session) Done() <-chan struct{} {
	if session == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return session.done
}

// Err reports a loop failure. Cancellation is not a failure.
func (session *Session) Err() error {
	if session == nil {
		return nil
	}
	session.errMutex.Lock()
	defer session.errMutex.Unlock()
	return session.err
}

func (session *Session) setErr(err error) {
	session.errMutex.Lock()
	if session.err == nil {
		session.err = err
	}
	session.errMutex.Unlock()
}

func (session *Session) Root() string {
	if session == nil {
		return ""
	}
	return session.root
}

func (session *Session) MetadataDir() string {
	if session == nil {
		return ""
	}
	return session.metadataDir
}

// Exclusions lists the absolute excluded paths.
func (session *Session) Exclusions() []string {
	if session == nil {
		return nil
	}
	paths := make([]string, 0, len(session.exclusions))
	for path := range session.exclusions {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// WatchedDirs lists the currently registered directories.
func (session *Session) WatchedDirs() []string {
	if session == nil {
		return nil
	}
	return session.registry.dirs()
}

func (session *Session) Metrics() Metrics {
	if session == nil {
		return Metrics{}
	}
	_, dropped := session.bus.Stats()
	return Metrics{
		WatchedDirs:          session.registry.len(),
		Batches:              session.batches.Load(),
		EmptyBatches:         session.emptyBatches.Load(),
		Notifications:        session.notifications.Load(),
		StaleWatches:         session.staleWatches.Load(),
		RegistrationFailures: session.registrationFailures.Load(),
		Rewalks:              session.rewalks.Load(),
		Errors:               session.errorCount.Load(),
		Dropped:              dropped,
	}
}

// teardown releases every watch, the fsnotify watcher and the notifier
// exactly once.
func (session *Session) teardown() {
	session.closeOnce.Do(func() {
		session.cancel()
		if session.rewalkTimer != nil {
			session.rewalkTimer.Stop()
			session.rewalkTimer = nil
		}
		session.bus.Close()
		for range session.registry.clear() {
			session.metrics.IncWatchRemoved()
		}
		if err := session.watcher.Close(); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
			session.closeErr = err
		}
		session.pending = nil
		close(session.done)
		session.logger.Info("watch session stopped", nil)
	})
}

func (session *Session) logWarn(message string, fields map[string]string) {
	if session == nil || session.logger == nil {
		return
	}
	session.logger.Warn(message, fields)
}

func (session *Session) logDebug(message, path string) {
	if session == nil || session.logger == nil || !session.logger.Enabled(logging.LevelDebug) {
		return
	}
	session.logger.Debug(message, map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(session.registry.len()),
	})
}
