package event

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"gitwatch/internal/metrics"
)

// MockBus is a Bus that also remembers everything published to it, for
// tests that care about what was sent rather than who received it.
type MockBus[T any] struct {
	*Bus[T]

	mu        sync.Mutex
	published []T
}

func NewMockBus[T any]() *MockBus[T] {
	return &MockBus[T]{
		Bus: NewBus[T](context.Background(), BusOptions{
			Name:                 "mock",
			SubscriberBufferSize: 16,
			Registry:             &metrics.Registry{},
		}),
	}
}

func (bus *MockBus[T]) Publish(value T) {
	bus.mu.Lock()
	bus.published = append(bus.published, value)
	bus.mu.Unlock()
	bus.Bus.Publish(value)
}

// Events returns a copy of every published value in publish order.
func (bus *MockBus[T]) Events() []T {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return slices.Clone(bus.published)
}

// ReceiveWithTimeout waits for one value or fails the test.
func ReceiveWithTimeout[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting")
		}
		return value
	case <-timer.C:
		t.Fatalf("nothing received within %s", timeout)
	}
	var zero T
	return zero
}

// ExpectNone fails the test if a value arrives on ch within window. A
// closed channel counts as quiet.
func ExpectNone[T any](t testing.TB, ch <-chan T, window time.Duration) {
	t.Helper()
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %v", value)
		}
	case <-timer.C:
	}
}

// Drain collects values until ch closes or stays quiet for idle.
func Drain[T any](ch <-chan T, idle time.Duration) []T {
	var values []T
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case value, ok := <-ch:
			if !ok {
				return values
			}
			values = append(values, value)
			timer.Reset(idle)
		case <-timer.C:
			return values
		}
	}
}
