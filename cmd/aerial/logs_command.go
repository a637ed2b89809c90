package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"aerial/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "aeriald.log")

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			err = logs.Tail(runCtx, path, lines, follow, cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming appended lines")
	return cmd
}
