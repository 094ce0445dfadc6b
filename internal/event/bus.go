// Package event provides the in-process broadcast used for change
// notifications and repository refresh snapshots.
package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"

	"golang.org/x/time/rate"
)

const (
	DefaultSubscriberBufferSize = 128
	defaultBlockTimeout         = time.Second
	dropWarningRatio            = 0.01
	dropWarningInterval         = 30 * time.Second
)

// BusOptions configures a Bus. The zero value gives non-blocking delivery
// with a 128-entry buffer per subscriber.
type BusOptions struct {
	// Name labels the bus in metrics and log fields.
	Name                 string
	SubscriberBufferSize int
	// BlockOnFull makes Publish wait up to WriteTimeout for a full
	// subscriber. A subscriber that stays full is unsubscribed.
	BlockOnFull  bool
	WriteTimeout time.Duration
	Registry     *metrics.Registry
	Logger       *logging.Logger
}

// Bus broadcasts every published value to the subscribers present at
// publish time. Late subscribers get no replay.
type Bus[T any] struct {
	name       string
	bufferSize int
	blockFor   time.Duration
	registry   *metrics.Registry
	logger     *logging.Logger

	// mu is held for reading while delivering, so cancel never closes a
	// channel that is being sent on.
	mu     sync.RWMutex
	subs   map[uint64]*subscriber[T]
	lastID uint64
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
	warnDrops rate.Sometimes
}

type subscriber[T any] struct {
	ch     chan T
	accept func(T) bool
}

// kinded values are counted per Type() in metrics.
type kinded interface {
	Type() string
}

func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	bus := &Bus[T]{
		name:       opts.Name,
		bufferSize: opts.SubscriberBufferSize,
		registry:   opts.Registry,
		logger:     opts.Logger,
		subs:       make(map[uint64]*subscriber[T]),
		warnDrops:  rate.Sometimes{Interval: dropWarningInterval},
	}
	if bus.name == "" {
		bus.name = "event_bus"
	}
	if bus.bufferSize <= 0 {
		bus.bufferSize = DefaultSubscriberBufferSize
	}
	if opts.BlockOnFull {
		bus.blockFor = opts.WriteTimeout
		if bus.blockFor <= 0 {
			bus.blockFor = defaultBlockTimeout
		}
	}
	if bus.registry == nil {
		bus.registry = metrics.Default
	}
	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, bus.Close)
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered delivers only values for which accept returns true.
// A nil accept admits everything. On a closed bus the returned channel is
// already closed.
func (b *Bus[T]) SubscribeFiltered(accept func(T) bool) (<-chan T, func()) {
	if b == nil {
		return closedChannel[T](), func() {}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return closedChannel[T](), func() {}
	}
	b.lastID++
	id := b.lastID
	sub := &subscriber[T]{ch: make(chan T, b.bufferSize), accept: accept}
	b.subs[id] = sub
	b.reportSubscribersLocked()
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

// Publish delivers value to every matching subscriber. A full subscriber
// loses the value unless BlockOnFull is set.
func (b *Bus[T]) Publish(value T) {
	if b == nil {
		return
	}
	kind := kindOf(value)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.published.Add(1)
	b.registry.IncEventPublished(b.name, kind)

	var stuck []uint64
	for id, sub := range b.subs {
		if sub.accept != nil && !sub.accept(value) {
			continue
		}
		if b.deliver(sub, value) {
			continue
		}
		b.recordDrop(kind)
		if b.blockFor > 0 {
			stuck = append(stuck, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range stuck {
		b.logger.Warn("event bus subscriber timed out", map[string]string{
			"bus":     b.name,
			"blocked": b.blockFor.String(),
		})
		b.unsubscribe(id)
	}
}

func (b *Bus[T]) deliver(sub *subscriber[T], value T) bool {
	select {
	case sub.ch <- value:
		return true
	default:
	}
	if b.blockFor <= 0 {
		return false
	}
	timer := time.NewTimer(b.blockFor)
	defer timer.Stop()
	select {
	case sub.ch <- value:
		return true
	case <-timer.C:
		return false
	}
}

func (b *Bus[T]) recordDrop(kind string) {
	dropped := b.dropped.Add(1)
	b.registry.IncEventDropped(b.name, kind)

	published := b.published.Load()
	ratio := float64(dropped) / float64(max(published, 1))
	if ratio < dropWarningRatio {
		return
	}
	b.warnDrops.Do(func() {
		b.logger.Warn("event bus dropping events", map[string]string{
			"bus":       b.name,
			"drop_rate": strconv.FormatFloat(ratio*100, 'f', 2, 64) + "%",
			"dropped":   strconv.FormatInt(dropped, 10),
			"published": strconv.FormatInt(published, 10),
		})
	})
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	b.reportSubscribersLocked()
}

// Close closes every subscriber channel. It is safe to call more than once.
func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.reportSubscribersLocked()
}

func (b *Bus[T]) Closed() bool {
	if b == nil {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats reports lifetime publish and drop counts.
func (b *Bus[T]) Stats() (published, dropped int64) {
	if b == nil {
		return 0, 0
	}
	return b.published.Load(), b.dropped.Load()
}

func (b *Bus[T]) reportSubscribersLocked() {
	filtered := 0
	for _, sub := range b.subs {
		if sub.accept != nil {
			filtered++
		}
	}
	b.registry.SetEventSubscriberCounts(b.name, filtered, len(b.subs)-filtered)
}

func kindOf(value any) string {
	if typed, ok := value.(kinded); ok && typed.Type() != "" {
		return typed.Type()
	}
	return "unknown"
}

func closedChannel[T any]() chan T {
	ch := make(chan T)
	close(ch)
	return ch
}
