package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

const eventTimeout = 3 * time.Second

func resolvedTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	return dir
}

func makeDirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
			t.Fatalf("create dir %s: %v", dir, err)
		}
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newTestRepo lays out a small repository: metadata, sources and a vendor
// tree.
func newTestRepo(t *testing.T) string {
	t.Helper()
	root := resolvedTempDir(t)
	makeDirs(t, root, ".git/refs/heads", ".git/objects", "src/pkg", "vendor/lib")
	return root
}

func testOptions() Options {
	return Options{
		Logger:  logging.Discard(),
		Metrics: &metrics.Registry{},
	}
}

func startSession(t *testing.T, root string, excluded []string, options Options) *Session {
	t.Helper()
	session, err := Start(context.Background(), root, excluded, options)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
	})
	return session
}

// prepareSession sets up watches without starting the loop, so tests can
// drive it directly from the test goroutine.
func prepareSession(t *testing.T, root string, excluded []string, options Options) *Session {
	t.Helper()
	session, err := newSession(context.Background(), root, excluded, options)
	if err != nil {
		t.Fatalf("prepare session: %v", err)
	}
	t.Cleanup(session.teardown)
	return session
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func containsDir(dirs []string, dir string) bool {
	for _, candidate := range dirs {
		if candidate == dir {
			return true
		}
	}
	return false
}

func countDir(dirs []string, dir string) int {
	count := 0
	for _, candidate := range dirs {
		if candidate == dir {
			count++
		}
	}
	return count
}

// queueUntil moves events from the OS watcher into the pending queue until
// one satisfies match.
func queueUntil(t *testing.T, session *Session, match func(fsnotify.Event) bool) {
	t.Helper()
	timeout := time.After(eventTimeout)
	for {
		select {
		case event := <-session.watcher.Events:
			session.pending = append(session.pending, event)
			if match(event) {
				return
			}
		case err := <-session.watcher.Errors:
			t.Fatalf("watcher error: %v", err)
		case <-timeout:
			t.Fatalf("timed out queueing events, have %v", session.pending)
		}
	}
}

// awaitRawEvent waits for the OS watcher to report name.
func awaitRawEvent(t *testing.T, session *Session, name string) {
	t.Helper()
	timeout := time.After(eventTimeout)
	for {
		select {
		case event := <-session.watcher.Events:
			if event.Name == name {
				return
			}
		case <-timeout:
			t.Fatalf("no event for %s", name)
		}
	}
}

func processAll(session *Session) {
	for len(session.pending) > 0 {
		session.processNext()
	}
}

func removeAll(path string) error {
	return os.RemoveAll(path)
}
