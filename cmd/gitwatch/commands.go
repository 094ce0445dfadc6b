package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// commandDeps carries the process edges so commands can run in tests.
type commandDeps struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Signals <-chan os.Signal
	Listen  func(network, address string) (net.Listener, error)
	// IsTerminal reports whether out is an interactive terminal.
	IsTerminal func(out io.Writer) bool
}

func defaultCommandDeps() commandDeps {
	return commandDeps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Listen:     net.Listen,
		IsTerminal: isTerminal,
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFile    string
}

// usageError marks failures caused by bad arguments rather than runtime
// problems.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func run(ctx context.Context, args []string, deps commandDeps) int {
	root := newRootCommand(deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "gitwatch: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func newRootCommand(deps commandDeps) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "gitwatch",
		Short:         "Watch a Git working tree and report metadata and worktree changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})

	persistent := root.PersistentFlags()
	persistent.StringVar(&flags.configPath, "config", "gitwatch.toml", "config file (TOML or YAML); missing files are ignored")
	persistent.StringVar(&flags.envFile, "env-file", ".env", "dotenv file consulted after the process environment")
	persistent.StringVar(&flags.logLevel, "log-level", "", "minimum log level (debug, info, warning, error)")
	persistent.StringVar(&flags.logFile, "log-file", "", "also write logs to this rotating file")

	root.AddCommand(
		newWatchCommand(deps, flags),
		newServeCommand(deps, flags),
		newIgnoredCommand(deps, flags),
		newConfigCommand(deps, flags),
		newVersionCommand(deps),
	)
	return root
}

// optionalPath returns the single positional path argument, if any.
func optionalPath(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}
