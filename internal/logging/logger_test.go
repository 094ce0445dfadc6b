package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("watch added", map[string]string{"path": "/repo/src"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "watch added" {
		t.Fatalf("expected message, got %q", entry.Message)
	}
	if entry.Context["path"] != "/repo/src" {
		t.Fatalf("expected context path, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Debug("debug", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerWithMergesBaseContext(t *testing.T) {
	var output bytes.Buffer
	logger := NewLoggerWithOutput(NewLogBuffer(10), LevelDebug, &output).With(map[string]string{
		"gitwatch.category": "watcher",
	})

	logger.Debug("watch removed", map[string]string{"path": "/repo/old"})

	line := output.String()
	if !strings.Contains(line, `level=debug msg="watch removed"`) {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, `gitwatch.category="watcher" path="/repo/old"`) {
		t.Fatalf("expected sorted fields, got %q", line)
	}
}

func TestLoggerStreamDeliversEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewLogBuffer(50), LevelInfo, io.Discard)
	output, cancel := logger.Subscribe()
	defer cancel()

	const total = 50
	for i := 0; i < total; i++ {
		logger.Info("message", nil)
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < total {
		select {
		case <-output:
			received++
		case <-deadline:
			t.Fatalf("timed out after receiving %d entries", received)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warn":    LevelWarning,
		"warning": LevelWarning,
		"error":   LevelError,
	}
	for raw, expected := range cases {
		level, ok := ParseLevel(raw)
		if !ok || level != expected {
			t.Fatalf("ParseLevel(%q) = %q, %v", raw, level, ok)
		}
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Fatal("expected unknown level to fail")
	}
}

func FuzzParseLevel(f *testing.F) {
	for _, seed := range []string{"info", "warn", "warning", "error", "debug", "", "???", "INFO"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		_, _ = ParseLevel(raw)
	})
}

func TestLevelAtLeast(t *testing.T) {
	if !LevelAtLeast(LevelError, LevelWarning) {
		t.Fatalf("expected error to pass a warning threshold")
	}
	if LevelAtLeast(LevelInfo, LevelWarning) {
		t.Fatalf("expected info to fail a warning threshold")
	}
	if !LevelAtLeast(LevelDebug, "") {
		t.Fatalf("expected empty threshold to admit debug")
	}
}
