// Package logging is the structured logger shared by the watcher, the
// refresh controller and the HTTP surface. Entries are written as logfmt
// lines, kept in a ring buffer and fanned out to live subscribers.
package logging

import (
	"io"
	"os"
	"sync"
	"time"
)

const DefaultBufferSize = 1000

// sink is shared by a logger and every child created with With.
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	buffer *LogBuffer
	hub    *LogHub
}

func (s *sink) emit(entry LogEntry) {
	s.buffer.Add(entry)
	s.hub.Broadcast(entry)

	line := entry.Line() + "\n"
	s.mu.Lock()
	_, _ = io.WriteString(s.out, line)
	s.mu.Unlock()
}

type Logger struct {
	sink     *sink
	minLevel Level
	fields   map[string]string
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		sink:     &sink{out: output, buffer: buffer, hub: NewLogHub()},
		minLevel: minLevel.orInfo(),
	}
}

// Discard returns a logger that keeps a small buffer and writes nowhere.
func Discard() *Logger {
	return NewLoggerWithOutput(NewLogBuffer(64), LevelInfo, io.Discard)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.sink.buffer
}

// Subscribe streams entries logged after the call. The returned func
// unsubscribes and closes the channel.
func (l *Logger) Subscribe() (<-chan LogEntry, func()) {
	if l == nil {
		return nil, func() {}
	}
	return l.sink.hub.Subscribe(0)
}

// DroppedEntries counts entries that live subscribers were too slow to take.
func (l *Logger) DroppedEntries() uint64 {
	if l == nil {
		return 0
	}
	return l.sink.hub.Dropped()
}

// With returns a child logger whose entries carry fields in addition to
// the parent's. The child shares the parent's buffer, subscribers and output.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.fields = mergeFields(l.fields, fields)
	return &child
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && LevelAtLeast(level, l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	l.sink.emit(LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.fields, fields),
	})
}
