package watcher

import (
	"context"
	"strconv"
	"sync"
)

// Source is anything notifications can be subscribed from. *Session
// satisfies it.
type Source interface {
	SubscribeFiltered(filter func(Notification) bool) (<-chan Notification, func())
}

// Hub dispatches notifications to callback listeners identified by string
// IDs.
type Hub struct {
	source        Source
	mutex         sync.Mutex
	subscriptions map[string]func()
	nextID        uint64
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// NewHub creates a Hub tied to ctx. Cancelling ctx closes the hub.
func NewHub(ctx context.Context, source Source) *Hub {
	if ctx == nil {
		ctx = context.Background()
	}
	derived, cancel := context.WithCancel(ctx)
	hub := &Hub{
		source:        source,
		subscriptions: make(map[string]func()),
		ctx:           derived,
		cancel:        cancel,
	}
	go func() {
		<-derived.Done()
		hub.Close()
	}()
	return hub
}

// Subscribe registers listener for notifications of kind, or for every
// notification when kind is empty. It returns "" when nothing was
// registered.
func (hub *Hub) Subscribe(kind string, listener func(Notification)) string {
	if hub == nil || hub.source == nil || listener == nil {
		return ""
	}
	if kind != "" && kind != NotificationMetadataChanged && kind != NotificationWorktreeChanged {
		return ""
	}

	hub.mutex.Lock()
	if hub.ctx.Err() != nil {
		hub.mutex.Unlock()
		return ""
	}
	var filter func(Notification) bool
	if kind != "" {
		filter = func(notification Notification) bool {
			return notification.Type() == kind
		}
	}
	notifications, cancel := hub.source.SubscribeFiltered(filter)
	hub.nextID++
	id := strconv.FormatUint(hub.nextID, 10)
	hub.subscriptions[id] = cancel
	hub.wg.Add(1)
	hub.mutex.Unlock()

	go func() {
		defer hub.wg.Done()
		for notification := range notifications {
			listener(notification)
		}
	}()

	return id
}

// Unsubscribe removes a subscription by ID.
func (hub *Hub) Unsubscribe(id string) {
	if hub == nil || id == "" {
		return
	}

	hub.mutex.Lock()
	cancel, ok := hub.subscriptions[id]
	delete(hub.subscriptions, id)
	hub.mutex.Unlock()

	if ok && cancel != nil {
		cancel()
	}
}

// Close cancels every subscription and waits for listeners to return.
func (hub *Hub) Close() {
	if hub == nil {
		return
	}
	hub.closeOnce.Do(func() {
		hub.mutex.Lock()
		hub.cancel()
		subscriptions := hub.subscriptions
		hub.subscriptions = make(map[string]func())
		hub.mutex.Unlock()

		for _, cancel := range subscriptions {
			if cancel != nil {
				cancel()
			}
		}
	})
	hub.wg.Wait()
}

// SubscriberCount reports the number of active subscriptions.
func (hub *Hub) SubscriberCount() int {
	if hub == nil {
		return 0
	}
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.subscriptions)
}
