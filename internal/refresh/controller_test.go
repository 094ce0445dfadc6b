package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gitwatch/internal/event"
	"gitwatch/internal/git"
	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
	"gitwatch/internal/watcher"
	gogit "github.com/go-git/go-git/v5"
)

type fakeRefresher struct {
	mutex       sync.Mutex
	branch      string
	status      git.StatusSummary
	err         error
	branchCalls int
	statusCalls int
}

func (refresher *fakeRefresher) Branch() (string, error) {
	refresher.mutex.Lock()
	defer refresher.mutex.Unlock()
	refresher.branchCalls++
	return refresher.branch, refresher.err
}

func (refresher *fakeRefresher) Status() (git.StatusSummary, error) {
	refresher.mutex.Lock()
	defer refresher.mutex.Unlock()
	refresher.statusCalls++
	return refresher.status, refresher.err
}

func (refresher *fakeRefresher) calls() (int, int) {
	refresher.mutex.Lock()
	defer refresher.mutex.Unlock()
	return refresher.branchCalls, refresher.statusCalls
}

func newTestController(t *testing.T, refresher Refresher) *Controller {
	t.Helper()
	controller := NewController(context.Background(), refresher, Options{
		Debounce: 20 * time.Millisecond,
		Logger:   logging.Discard(),
		Metrics:  &metrics.Registry{},
	})
	t.Cleanup(controller.Close)
	return controller
}

func TestControllerCoalescesBurst(t *testing.T) {
	refresher := &fakeRefresher{branch: "main", status: git.StatusSummary{Clean: true}}
	controller := newTestController(t, refresher)
	snapshots, cancel := controller.Subscribe()
	defer cancel()

	notifications := make(chan watcher.Notification, 8)
	for i := 0; i < 5; i++ {
		notifications <- watcher.Notification(false)
	}
	notifications <- watcher.Notification(true)
	close(notifications)
	controller.Run(notifications)

	snapshot := event.ReceiveWithTimeout(t, snapshots, time.Second)
	if !snapshot.Full || snapshot.Branch != "main" {
		t.Fatalf("expected full refresh on main, got %+v", snapshot)
	}
	event.ExpectNone(t, snapshots, 100*time.Millisecond)

	stats := controller.Stats()
	if stats.Requests != 6 || stats.Coalesced != 5 || stats.Full != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestControllerWorktreeRefreshKeepsBranch(t *testing.T) {
	refresher := &fakeRefresher{branch: "main"}
	controller := newTestController(t, refresher)

	if _, err := controller.Refresh(true); err != nil {
		t.Fatalf("full refresh: %v", err)
	}
	refresher.mutex.Lock()
	refresher.branch = "feature"
	refresher.status = git.StatusSummary{Modified: 2}
	refresher.mutex.Unlock()

	snapshot, err := controller.Refresh(false)
	if err != nil {
		t.Fatalf("status refresh: %v", err)
	}
	if snapshot.Full || snapshot.Branch != "main" || snapshot.Status.Modified != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	branchCalls, statusCalls := refresher.calls()
	if branchCalls != 1 || statusCalls != 2 {
		t.Fatalf("expected 1 branch and 2 status reads, got %d and %d", branchCalls, statusCalls)
	}
}

func TestControllerFirstRefreshIsFull(t *testing.T) {
	controller := newTestController(t, &fakeRefresher{branch: "main"})

	snapshot, err := controller.Refresh(false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !snapshot.Full || snapshot.Branch != "main" {
		t.Fatalf("expected first refresh to be full, got %+v", snapshot)
	}
	if latest, ok := controller.Latest(); !ok || latest.Branch != "main" {
		t.Fatalf("unexpected latest %+v", latest)
	}
}

func TestControllerRefreshFailure(t *testing.T) {
	boom := errors.New("boom")
	controller := newTestController(t, &fakeRefresher{err: boom})

	if _, err := controller.Refresh(true); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := controller.Latest(); ok {
		t.Fatal("expected no snapshot after failure")
	}
	if controller.Stats().Failures != 1 {
		t.Fatalf("expected failure to be counted")
	}
}

func TestControllerCloseStopsRequests(t *testing.T) {
	refresher := &fakeRefresher{branch: "main"}
	controller := newTestController(t, refresher)
	snapshots, _ := controller.Subscribe()

	controller.Close()
	controller.Request(true)

	for range snapshots {
		t.Fatal("unexpected snapshot after close")
	}
	if branchCalls, statusCalls := refresher.calls(); branchCalls != 0 || statusCalls != 0 {
		t.Fatalf("expected no reads after close, got %d and %d", branchCalls, statusCalls)
	}
}

func TestControllerWithRepository(t *testing.T) {
	root := t.TempDir()
	if _, err := gogit.PlainInit(root, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	repo, err := git.Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	controller := newTestController(t, repo)

	snapshot, err := controller.Refresh(true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snapshot.Branch != "master" || !snapshot.Status.Clean {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}
