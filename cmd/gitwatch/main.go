package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	deps := defaultCommandDeps()
	deps.Signals = signals
	os.Exit(run(context.Background(), os.Args[1:], deps))
}
