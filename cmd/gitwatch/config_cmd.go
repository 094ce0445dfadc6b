package main

import (
	"errors"
	"fmt"
	"os"

	"gitwatch/internal/config"
	"gitwatch/internal/logging"

	"github.com/spf13/cobra"
)

func newConfigCommand(deps commandDeps, global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}
	cmd.AddCommand(newConfigValidateCommand(deps), newConfigInitCommand(deps, global))
	return cmd
}

func newConfigValidateCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a config file and report unknown keys",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return err
			}
			settings, err := config.Load(path, nil)
			if err != nil {
				return err
			}
			unknown, err := config.UnknownKeys(path)
			if err != nil {
				return err
			}
			for _, key := range unknown {
				fmt.Fprintf(deps.Stderr, "warning: unknown key %s\n", key)
			}
			if err := config.Validate(settings); err != nil {
				return usageError{err: fmt.Errorf("%s is invalid:\n%w", path, err)}
			}
			fmt.Fprintf(deps.Stdout, "%s: ok\n", path)
			return nil
		},
	}
}

func newConfigInitCommand(deps commandDeps, global *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration for editing",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := global.configPath
			if len(args) == 1 {
				dest = args[0]
			}
			extractor := &config.Extractor{
				Logger: logging.NewLoggerWithOutput(nil, logging.LevelWarning, deps.Stderr),
			}
			action, err := extractor.Extract(dest, force)
			if errors.Is(err, config.ErrConfigExists) {
				return usageError{err: fmt.Errorf("%w; pass --force to replace it", err)}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(deps.Stdout, "%s: %s\n", dest, action)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace a modified file, keeping a .bck copy")
	return cmd
}
