package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aerial/internal/daemon"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the aerial version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "aerial %s\n", daemon.Version)
			return nil
		},
	}
}
