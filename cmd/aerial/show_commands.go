package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"aerial/internal/library"
	"aerial/internal/media"
)

func newShowsCommand(ctx *commandContext) *cobra.Command {
	showsCmd := &cobra.Command{
		Use:   "shows",
		Short: "Manage tracked shows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowsList(cmd, ctx, "", false)
		},
	}

	showsCmd.AddCommand(newShowsAddCommand(ctx))
	showsCmd.AddCommand(newShowsListCommand(ctx))
	showsCmd.AddCommand(newShowsPauseCommand(ctx, true))
	showsCmd.AddCommand(newShowsPauseCommand(ctx, false))
	showsCmd.AddCommand(newShowsRemoveCommand(ctx))
	return showsCmd
}

func newShowsAddCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var runtimeMin int
	var searchString string
	var language string
	var path string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Start tracking a show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("show name must not be empty")
			}
			return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
				series, err := store.AddSeries(reqCtx, &media.Series{
					Name:         name,
					SearchString: strings.TrimSpace(searchString),
					Path:         strings.TrimSpace(path),
					RuntimeMin:   runtimeMin,
					Quality:      media.ParseQuality(quality),
					Language:     strings.TrimSpace(language),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added show %q (id %d, quality %s)\n",
					series.Name, series.ID, series.Quality)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&quality, "quality", "q", "any", "Quality tier (sd, hd, uhd, any)")
	cmd.Flags().IntVar(&runtimeMin, "runtime", 0, "Episode runtime in minutes")
	cmd.Flags().StringVar(&searchString, "search", "", "Override the provider search string")
	cmd.Flags().StringVar(&language, "language", "", "Preferred audio language")
	cmd.Flags().StringVar(&path, "path", "", "Library subdirectory override")
	return cmd
}

func newShowsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List tracked shows, optionally fuzzy-filtered by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return runShowsList(cmd, ctx, filter, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable output")
	return cmd
}

func runShowsList(cmd *cobra.Command, ctx *commandContext, filter string, jsonOut bool) error {
	return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
		series, err := store.ListSeries(reqCtx)
		if err != nil {
			return err
		}
		series = filterSeries(series, filter)

		if jsonOut {
			return writeJSON(cmd, series)
		}

		out := cmd.OutOrStdout()
		if len(series) == 0 {
			fmt.Fprintln(out, "No shows tracked")
			return nil
		}
		rows := make([][]string, 0, len(series))
		for _, s := range series {
			rows = append(rows, []string{
				strconv.FormatInt(s.ID, 10),
				s.Name,
				string(s.Quality),
				fmt.Sprintf("%d min", s.Runtime()),
				yesNo(s.Paused),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Name", "Quality", "Runtime", "Paused"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}))
		return nil
	})
}

func filterSeries(series []*media.Series, filter string) []*media.Series {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return series
	}
	matched := make([]*media.Series, 0, len(series))
	for _, s := range series {
		if fuzzy.MatchNormalizedFold(filter, s.Name) {
			matched = append(matched, s)
		}
	}
	return matched
}

func newShowsPauseCommand(ctx *commandContext, pause bool) *cobra.Command {
	use, short := "pause <name>", "Pause acquisition for a show"
	if !pause {
		use, short = "resume <name>", "Resume acquisition for a show"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
				series, err := store.SeriesByName(reqCtx, args[0])
				if err != nil {
					return err
				}
				if series.Paused == pause {
					fmt.Fprintf(cmd.OutOrStdout(), "Show %q already %s\n", series.Name, pausedLabel(pause))
					return nil
				}
				series.Paused = pause
				if err := store.UpdateSeries(reqCtx, series); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Show %q %s\n", series.Name, pausedLabel(pause))
				return nil
			})
		},
	}
}

func pausedLabel(paused bool) string {
	if paused {
		return "paused"
	}
	return "active"
}

func newShowsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Stop tracking a show and forget its episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
				series, err := store.SeriesByName(reqCtx, args[0])
				if err != nil {
					return err
				}
				if err := store.DeleteSeries(reqCtx, series.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed show %q\n", series.Name)
				return nil
			})
		},
	}
}
