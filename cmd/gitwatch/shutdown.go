package main

import (
	"context"
	"errors"
	"os"
	"sync"

	"gitwatch/internal/logging"
)

// watchShutdownSignals cancels on the first signal. Later signals are
// logged once and otherwise ignored.
func watchShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}

	quit := make(chan struct{})
	go func() {
		received := 0
		for {
			var sig os.Signal
			select {
			case <-quit:
				return
			case next, ok := <-signals:
				if !ok {
					return
				}
				sig = next
			}
			received++

			fields := map[string]string{}
			if sig != nil {
				fields["signal"] = sig.String()
			}
			switch received {
			case 1:
				logger.Info("shutdown signal received", fields)
				cancel()
			case 2:
				logger.Info("shutdown already in progress; ignoring signal", fields)
			}
		}
	}()

	return sync.OnceFunc(func() { close(quit) })
}

// shutdownCoordinator stops components in the order they were added. Run
// only does work the first time; every phase runs even if an earlier one
// failed.
type shutdownCoordinator struct {
	logger *logging.Logger
	names  []string
	stops  []func(context.Context) error
	run    sync.Once
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (c *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if stop == nil {
		return
	}
	c.names = append(c.names, name)
	c.stops = append(c.stops, stop)
}

func (c *shutdownCoordinator) Run(ctx context.Context) error {
	var errs []error
	c.run.Do(func() {
		for i, stop := range c.stops {
			phase := map[string]string{"phase": c.names[i]}
			c.logger.Debug("shutdown phase starting", phase)
			if err := stop(ctx); err != nil {
				phase["error"] = err.Error()
				c.logger.Warn("shutdown phase failed", phase)
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
