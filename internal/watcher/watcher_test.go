package watcher

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"gitwatch/internal/event"
)

func TestSessionNotifiesWorktreeChange(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, []string{"vendor"}, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()

	writeFile(t, filepath.Join(root, "src", "pkg", "main.go"), "package pkg\n")

	if got := event.ReceiveWithTimeout(t, notifications, eventTimeout); got.Metadata() {
		t.Fatal("expected worktree notification")
	}
}

func TestSessionNotifiesMetadataChange(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, []string{"vendor"}, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()

	writeFile(t, filepath.Join(root, ".git", "refs", "heads", "main"), "0123456789abcdef\n")

	if got := event.ReceiveWithTimeout(t, notifications, eventTimeout); !got.Metadata() {
		t.Fatal("expected metadata notification")
	}
}

func TestSessionMetadataSiblingIsWorktree(t *testing.T) {
	root := newTestRepo(t)
	makeDirs(t, root, ".git-backup")
	session := startSession(t, root, nil, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()

	writeFile(t, filepath.Join(root, ".git-backup", "HEAD"), "ref: refs/heads/main\n")

	for _, got := range append([]Notification{event.ReceiveWithTimeout(t, notifications, eventTimeout)}, event.Drain(notifications, 200*time.Millisecond)...) {
		if got.Metadata() {
			t.Fatal("expected .git-backup changes to classify as worktree")
		}
	}
}

func TestSessionChmodOnlyPublishesNothing(t *testing.T) {
	root := newTestRepo(t)
	path := filepath.Join(root, "src", "file.txt")
	writeFile(t, path, "data")
	session := startSession(t, root, nil, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()

	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	event.ExpectNone(t, notifications, 300*time.Millisecond)
	waitFor(t, "empty batch", func() bool {
		return session.Metrics().EmptyBatches > 0
	})
}

func TestSessionExcludedEntryPublishesNothing(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, []string{"vendor"}, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()

	if err := os.RemoveAll(filepath.Join(root, "vendor")); err != nil {
		t.Fatalf("remove vendor: %v", err)
	}

	event.ExpectNone(t, notifications, 300*time.Millisecond)
}

func TestSessionSubscribersSeeSameSequence(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, []string{"vendor"}, testOptions())
	first, cancelFirst := session.Subscribe()
	defer cancelFirst()
	second, cancelSecond := session.Subscribe()
	defer cancelSecond()

	writeFile(t, filepath.Join(root, "src", "a.go"), "package src\n")
	head := event.ReceiveWithTimeout(t, first, eventTimeout)
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")

	firstSeen := append([]Notification{head}, event.Drain(first, 300*time.Millisecond)...)
	secondSeen := event.Drain(second, 300*time.Millisecond)
	if len(secondSeen) < 2 {
		t.Fatalf("expected at least 2 notifications, got %v", secondSeen)
	}
	if !reflect.DeepEqual(firstSeen, secondSeen) {
		t.Fatalf("subscribers diverged\nfirst  %v\nsecond %v", firstSeen, secondSeen)
	}
	if !secondSeen[len(secondSeen)-1].Metadata() {
		t.Fatalf("expected metadata change last, got %v", secondSeen)
	}
}

func TestSessionLateSubscriberGetsNoReplay(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, nil, testOptions())
	early, cancelEarly := session.Subscribe()
	defer cancelEarly()

	writeFile(t, filepath.Join(root, "src", "a.go"), "package src\n")
	event.ReceiveWithTimeout(t, early, eventTimeout)
	event.Drain(early, 200*time.Millisecond)

	late, cancelLate := session.Subscribe()
	defer cancelLate()
	event.ExpectNone(t, late, 200*time.Millisecond)
}

func TestSessionCancellationStopsLoop(t *testing.T) {
	root := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	session, err := Start(ctx, root, nil, testOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	notifications, unsubscribe := session.Subscribe()
	defer unsubscribe()

	cancel()

	select {
	case <-session.Done():
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for session to stop")
	}
	writeFile(t, filepath.Join(root, "src", "late.go"), "package src\n")

	for range notifications {
		t.Fatal("unexpected notification after cancellation")
	}
	if err := session.Err(); err != nil {
		t.Fatalf("expected nil error after cancellation, got %v", err)
	}
	if dirs := session.WatchedDirs(); len(dirs) != 0 {
		t.Fatalf("expected watches released, got %v", dirs)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("close after cancel: %v", err)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	root := newTestRepo(t)
	session, err := Start(context.Background(), root, nil, testOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	notifications, _ := session.Subscribe()
	if _, ok := <-notifications; ok {
		t.Fatal("expected closed channel after session close")
	}
}

func TestSessionDropsDeletedDirectory(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, nil, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()
	removed := filepath.Join(root, "src", "pkg")

	if err := os.RemoveAll(removed); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, "stale watch removal", func() bool {
		return !containsDir(session.WatchedDirs(), removed)
	})
	event.Drain(notifications, 200*time.Millisecond)

	writeFile(t, filepath.Join(root, "src", "after.go"), "package src\n")
	if got := event.ReceiveWithTimeout(t, notifications, eventTimeout); got.Metadata() {
		t.Fatal("expected worktree notification after removal")
	}
	if session.Metrics().StaleWatches == 0 {
		t.Fatal("expected stale watch to be counted")
	}
}

func TestSessionRecreatedDirectoryIsWatched(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, nil, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()
	pkg := filepath.Join(root, "src", "pkg")

	if err := os.RemoveAll(pkg); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Mkdir(pkg, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitFor(t, "recreated directory registration", func() bool {
		return countDir(session.WatchedDirs(), pkg) == 1
	})
	event.Drain(notifications, 200*time.Millisecond)

	writeFile(t, filepath.Join(pkg, "new.go"), "package pkg\n")
	if got := event.ReceiveWithTimeout(t, notifications, eventTimeout); got.Metadata() {
		t.Fatal("expected worktree notification from recreated directory")
	}
	if got := countDir(session.WatchedDirs(), pkg); got != 1 {
		t.Fatalf("expected one registration for %s, got %d", pkg, got)
	}
}

func TestSessionRenamedDirectoryIsWatched(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, nil, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()
	pkg := filepath.Join(root, "src", "pkg")
	moved := filepath.Join(root, "src", "moved")

	if err := os.Rename(pkg, moved); err != nil {
		t.Fatalf("rename: %v", err)
	}
	waitFor(t, "renamed directory registration", func() bool {
		dirs := session.WatchedDirs()
		return countDir(dirs, moved) == 1 && !containsDir(dirs, pkg)
	})
	event.Drain(notifications, 200*time.Millisecond)

	writeFile(t, filepath.Join(moved, "new.txt"), "data")
	if got := event.ReceiveWithTimeout(t, notifications, eventTimeout); got.Metadata() {
		t.Fatal("expected worktree notification from renamed directory")
	}
	if got := countDir(session.WatchedDirs(), moved); got != 1 {
		t.Fatalf("expected one registration for %s, got %d", moved, got)
	}
}

func TestSessionRegistersNewDirectories(t *testing.T) {
	root := newTestRepo(t)
	session := startSession(t, root, []string{"vendor"}, testOptions())
	notifications, cancel := session.Subscribe()
	defer cancel()
	created := filepath.Join(root, "src", "fresh")

	makeDirs(t, root, "src/fresh/nested")
	waitFor(t, "new directory registration", func() bool {
		return containsDir(session.WatchedDirs(), created)
	})
	event.Drain(notifications, 200*time.Millisecond)

	writeFile(t, filepath.Join(created, "new.go"), "package fresh\n")
	if got := event.ReceiveWithTimeout(t, notifications, eventTimeout); got.Metadata() {
		t.Fatal("expected worktree notification from new directory")
	}

	makeDirs(t, root, "vendor/extra")
	event.Drain(notifications, 200*time.Millisecond)
	if containsDir(session.WatchedDirs(), filepath.Join(root, "vendor", "extra")) {
		t.Fatal("expected excluded subtree to stay unwatched")
	}
}

func TestSessionAutoRegisterDisabled(t *testing.T) {
	root := newTestRepo(t)
	options := testOptions()
	options.DisableAutoRegister = true
	session := startSession(t, root, nil, options)
	notifications, cancel := session.Subscribe()
	defer cancel()

	makeDirs(t, root, "src/fresh")
	event.ReceiveWithTimeout(t, notifications, eventTimeout)
	event.Drain(notifications, 100*time.Millisecond)

	if containsDir(session.WatchedDirs(), filepath.Join(root, "src", "fresh")) {
		t.Fatal("expected new directory to stay unwatched")
	}
}
