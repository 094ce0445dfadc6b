package main

import (
	"context"
	"fmt"

	"gitwatch/internal/api"

	"github.com/spf13/cobra"
)

type serveFlags struct {
	addr  string
	token string
}

func newServeCommand(deps commandDeps, global *globalFlags) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve change, refresh and log streams over HTTP",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, deps, global, flags, optionalPath(args))
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&flags.token, "token", "", "require this bearer token (defaults to GITWATCH_TOKEN)")
	return cmd
}

func runServe(cmd *cobra.Command, deps commandDeps, global *globalFlags, flags *serveFlags, root string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := startEnvironment(ctx, global, root, deps.Stderr)
	if err != nil {
		return err
	}
	defer env.close()
	stopSignals := watchShutdownSignals(env.logger, cancel, deps.Signals)
	defer stopSignals()

	addr := flags.addr
	if addr == "" {
		addr = env.settings.Server.Addr
	}
	token := flags.token
	if token == "" {
		token = env.token
	}

	listen := deps.Listen
	if listen == nil {
		return fmt.Errorf("no listener available")
	}
	listener, err := listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &api.Server{
		Session:        env.session,
		Refresh:        env.controller,
		Logger:         env.logger,
		Metrics:        env.registry,
		AuthToken:      token,
		AllowedOrigins: env.settings.Server.AllowedOrigins,
	}

	// A session that dies on its own takes the server down with it.
	go func() {
		select {
		case <-env.session.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := api.Serve(ctx, listener, server.Handler(), env.logger); err != nil {
		return err
	}
	return env.session.Err()
}
