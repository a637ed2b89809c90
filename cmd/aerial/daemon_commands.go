package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"aerial/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and running transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(reqCtx context.Context, client *ipc.Client) error {
				status, err := client.Status(reqCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				printStatus(cmd, status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable output")
	return cmd
}

func printStatus(cmd *cobra.Command, status *ipc.DaemonStatus) {
	out := cmd.OutOrStdout()
	color := shouldColorize(out)

	fmt.Fprintf(out, "Daemon: %s (pid %d, version %s)\n",
		colorize("running", ansiGreen, color), status.PID, status.Version)
	if !status.StartedAt.IsZero() {
		fmt.Fprintf(out, "Started: %s\n", humanize.Time(status.StartedAt))
	}
	if !status.NextCheck.IsZero() {
		fmt.Fprintf(out, "Next check: %s (%s)\n",
			status.NextCheck.Format("2006-01-02 15:04"), humanize.Time(status.NextCheck))
	}
	fmt.Fprintf(out, "Parallel limit: %d\n", status.Scheduler.Limit)

	if rows := buildActiveRows(status.Scheduler.Active); rows != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Active transfers:")
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Series", "Episode", "Candidate", "Progress"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}))
	}
	if rows := buildQueuedRows(status.Scheduler.Queued); rows != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Queued episodes:")
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Series", "Episode", "Airdate"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	}
	if len(status.Scheduler.Active) == 0 && len(status.Scheduler.Queued) == 0 {
		fmt.Fprintln(out, "No transfers queued or active")
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(reqCtx context.Context, client *ipc.Client) error {
				if err := client.Stop(reqCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon stop requested")
				return nil
			})
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Trigger an immediate episode check",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(reqCtx context.Context, client *ipc.Client) error {
				if _, err := client.Check(reqCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Check triggered")
				return nil
			})
		},
	}
}

func newLimitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "limit [count]",
		Short: "Show or change the parallel download limit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(reqCtx context.Context, client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					resp, err := client.Limit(reqCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Parallel limit: %d\n", resp.Limit)
					return nil
				}

				limit, err := strconv.Atoi(strings.TrimSpace(args[0]))
				if err != nil || limit < 1 {
					return fmt.Errorf("invalid limit %q (must be a positive integer)", args[0])
				}
				resp, err := client.SetLimit(reqCtx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Parallel limit set to %d\n", resp.Limit)
				return nil
			})
		},
	}
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the retrieve queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, ctx, false)
		},
	}

	var jsonOut bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued and active episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, ctx, jsonOut)
		},
	}
	listCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable output")

	cancelCmd := &cobra.Command{
		Use:   "cancel <episode-id>",
		Short: "Cancel a queued or active transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid episode id %q", args[0])
			}
			return ctx.withClient(func(reqCtx context.Context, client *ipc.Client) error {
				if _, err := client.Cancel(reqCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d cancelled\n", id)
				return nil
			})
		},
	}

	queueCmd.AddCommand(listCmd)
	queueCmd.AddCommand(cancelCmd)
	return queueCmd
}

func runQueueList(cmd *cobra.Command, ctx *commandContext, jsonOut bool) error {
	return ctx.withClient(func(reqCtx context.Context, client *ipc.Client) error {
		resp, err := client.Queue(reqCtx)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd, resp)
		}

		out := cmd.OutOrStdout()
		if rows := buildActiveRows(resp.Scheduler.Active); rows != nil {
			fmt.Fprintln(out, "Active transfers:")
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Series", "Episode", "Candidate", "Progress"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}))
		}
		if rows := buildQueuedRows(resp.Scheduler.Queued); rows != nil {
			fmt.Fprintln(out, "Queued episodes:")
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Series", "Episode", "Airdate"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
		}
		if len(resp.Scheduler.Active) == 0 && len(resp.Scheduler.Queued) == 0 {
			fmt.Fprintln(out, "Queue is empty")
		}
		return nil
	})
}
