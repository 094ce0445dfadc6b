package logging

import (
	"sync"
	"testing"
	"time"
)

func TestLogBufferCircular(t *testing.T) {
	buffer := NewLogBuffer(2)
	buffer.Add(LogEntry{Message: "first"})
	buffer.Add(LogEntry{Message: "second"})
	buffer.Add(LogEntry{Message: "third"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "second" || entries[1].Message != "third" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestLogBufferConcurrentAdds(t *testing.T) {
	buffer := NewLogBuffer(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				buffer.Add(LogEntry{Timestamp: time.Now(), Message: "entry"})
			}
		}()
	}
	wg.Wait()

	if got := buffer.Len(); got != 50 {
		t.Fatalf("expected 50 entries, got %d", got)
	}
}

func TestLogBufferEmptyAndPartial(t *testing.T) {
	buffer := NewLogBuffer(3)
	if entries := buffer.List(); entries != nil {
		t.Fatalf("expected nil for empty buffer, got %v", entries)
	}
	buffer.Add(LogEntry{Message: "only"})
	if got := buffer.Len(); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
	entries := buffer.List()
	entries[0].Message = "mutated"
	if buffer.List()[0].Message != "only" {
		t.Fatal("expected List to return a copy")
	}
}

func TestLogBufferZeroSizeKeepsLatest(t *testing.T) {
	buffer := NewLogBuffer(0)
	buffer.Add(LogEntry{Message: "a"})
	buffer.Add(LogEntry{Message: "b"})
	entries := buffer.List()
	if len(entries) != 1 || entries[0].Message != "b" {
		t.Fatalf("expected only latest entry, got %+v", entries)
	}
}
