package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"gitwatch/internal/logging"

	"github.com/stretchr/testify/require"
)

func TestShutdownCoordinatorRunsPhasesInOrderOnce(t *testing.T) {
	var order []string
	coordinator := newShutdownCoordinator(logging.Discard())
	coordinator.Add("refresh", func(context.Context) error {
		order = append(order, "refresh")
		return nil
	})
	coordinator.Add("watcher", func(context.Context) error {
		order = append(order, "watcher")
		return errors.New("close failed")
	})
	coordinator.Add("log file", func(context.Context) error {
		order = append(order, "log file")
		return nil
	})

	err := coordinator.Run(context.Background())
	require.ErrorContains(t, err, "close failed")
	require.Equal(t, []string{"refresh", "watcher", "log file"}, order)

	require.NoError(t, coordinator.Run(context.Background()))
	require.Len(t, order, 3)
}

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 2)
	stop := watchShutdownSignals(logger, cancel, signals)
	defer stop()

	signals <- syscall.SIGTERM
	signals <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected cancellation")
	}
	require.Eventually(t, func() bool {
		return buffer.Len() == 2
	}, time.Second, 10*time.Millisecond)
	entries := buffer.List()
	require.Equal(t, "shutdown signal received", entries[0].Message)
	require.Equal(t, "shutdown already in progress; ignoring signal", entries[1].Message)
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, func() {}, nil)
	stop()
}
