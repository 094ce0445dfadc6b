package main

import (
	"fmt"

	"gitwatch/internal/git"

	"github.com/spf13/cobra"
)

func newIgnoredCommand(deps commandDeps, global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ignored [path]",
		Short: "List the directories Git ignores, which watch and serve exclude",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := loadSettings(global, optionalPath(args))
			if err != nil {
				return err
			}
			if _, err := git.OpenRoot(settings.Watch.Root); err != nil {
				return err
			}
			dirs, err := git.IgnoredDirs(settings.Watch.Root, settings.Watch.MetadataDir)
			if err != nil {
				return err
			}
			for _, dir := range dirs {
				fmt.Fprintln(deps.Stdout, dir)
			}
			return nil
		},
	}
}
