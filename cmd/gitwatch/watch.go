package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"gitwatch/internal/refresh"
	"gitwatch/internal/watcher"

	"github.com/spf13/cobra"
)

const (
	formatAuto = "auto"
	formatText = "text"
	formatJSON = "json"
)

type watchFlags struct {
	format  string
	kind    string
	refresh bool
}

type changeLine struct {
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	Metadata bool      `json:"metadata"`
}

type refreshLine struct {
	Type string `json:"type"`
	refresh.Snapshot
}

// linePrinter serializes output from listener goroutines.
type linePrinter struct {
	mu   sync.Mutex
	out  io.Writer
	json bool
}

func newWatchCommand(deps commandDeps, global *globalFlags) *cobra.Command {
	flags := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Print a line for every change under path",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, deps, global, flags, optionalPath(args))
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", formatAuto, "output format: auto, text or json")
	cmd.Flags().StringVar(&flags.kind, "kind", "", "only print metadata_changed or worktree_changed")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "also print repository snapshots after each refresh")
	return cmd
}

func runWatch(cmd *cobra.Command, deps commandDeps, global *globalFlags, flags *watchFlags, root string) error {
	asJSON, err := resolveFormat(flags.format, deps)
	if err != nil {
		return err
	}
	switch flags.kind {
	case "", watcher.NotificationMetadataChanged, watcher.NotificationWorktreeChanged:
	default:
		return usageError{err: fmt.Errorf("unknown kind %q", flags.kind)}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := startEnvironment(ctx, global, root, deps.Stderr)
	if err != nil {
		return err
	}
	stopSignals := watchShutdownSignals(env.logger, cancel, deps.Signals)
	defer stopSignals()

	printer := &linePrinter{out: deps.Stdout, json: asJSON}
	hub := watcher.NewHub(ctx, env.session)
	hub.Subscribe(flags.kind, printer.printChange)

	var snapshots sync.WaitGroup
	if flags.refresh && env.controller != nil {
		output, unsubscribe := env.controller.Subscribe()
		defer unsubscribe()
		snapshots.Add(1)
		go func() {
			defer snapshots.Done()
			for snapshot := range output {
				printer.printSnapshot(snapshot)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-env.session.Done():
	}

	sessionErr := env.session.Err()
	hub.Close()
	closeErr := env.close()
	snapshots.Wait()
	if sessionErr != nil {
		return sessionErr
	}
	return closeErr
}

func resolveFormat(format string, deps commandDeps) (bool, error) {
	switch format {
	case formatJSON:
		return true, nil
	case formatText:
		return false, nil
	case formatAuto, "":
		return deps.IsTerminal == nil || !deps.IsTerminal(deps.Stdout), nil
	default:
		return false, usageError{err: fmt.Errorf("unknown format %q", format)}
	}
}

func (p *linePrinter) printChange(notification watcher.Notification) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		_ = json.NewEncoder(p.out).Encode(changeLine{Time: now.UTC(), Type: notification.Type(), Metadata: notification.Metadata()})
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", now.Format("15:04:05.000"), notification.Type())
}

func (p *linePrinter) printSnapshot(snapshot refresh.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		_ = json.NewEncoder(p.out).Encode(refreshLine{Type: snapshot.Type(), Snapshot: snapshot})
		return
	}
	fmt.Fprintf(p.out, "%s %s branch=%s staged=%d modified=%d untracked=%d\n",
		snapshot.Timestamp.Local().Format("15:04:05.000"),
		snapshot.Type(),
		snapshot.Branch,
		snapshot.Status.Staged,
		snapshot.Status.Modified,
		snapshot.Status.Untracked,
	)
}
