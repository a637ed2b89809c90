package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aerial/internal/library"
	"aerial/internal/media"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Manage wanted episodes",
	}

	episodesCmd.AddCommand(newEpisodesAddCommand(ctx))
	episodesCmd.AddCommand(newEpisodesListCommand(ctx))
	episodesCmd.AddCommand(newEpisodesMarkCommand(ctx))
	return episodesCmd
}

func newEpisodesAddCommand(ctx *commandContext) *cobra.Command {
	var airDate string
	var title string
	var force bool

	cmd := &cobra.Command{
		Use:   "add <show> <code>",
		Short: "Mark an episode as wanted, e.g. aerial episodes add \"Show\" S01E02",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, number, err := parseEpisodeCode(args[1])
			if err != nil {
				return err
			}
			var aired time.Time
			if strings.TrimSpace(airDate) != "" {
				aired, err = time.Parse("2006-01-02", strings.TrimSpace(airDate))
				if err != nil {
					return fmt.Errorf("invalid airdate %q (expected YYYY-MM-DD)", airDate)
				}
			}
			status := media.StatusNeed
			if force {
				status = media.StatusNeedForced
			}

			return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
				series, err := store.SeriesByName(reqCtx, args[0])
				if err != nil {
					return err
				}
				ep, err := store.UpsertEpisode(reqCtx, &media.Episode{
					SeriesID: series.ID,
					Season:   season,
					Number:   number,
					Title:    strings.TrimSpace(title),
					AirDate:  aired,
					Status:   status,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %s %s marked %s (id %d)\n",
					series.Name, ep.Code(), ep.Status, ep.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&airDate, "airdate", "", "Airdate (YYYY-MM-DD); undated episodes dispatch last")
	cmd.Flags().StringVar(&title, "title", "", "Episode title")
	cmd.Flags().BoolVar(&force, "force", false, "Re-acquire even if a copy already exists")
	return cmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list <show>",
		Short: "List the tracked episodes of a show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
				series, err := store.SeriesByName(reqCtx, args[0])
				if err != nil {
					return err
				}
				episodes, err := store.EpisodesBySeries(reqCtx, series.ID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, episodes)
				}

				out := cmd.OutOrStdout()
				if len(episodes) == 0 {
					fmt.Fprintf(out, "No episodes tracked for %q\n", series.Name)
					return nil
				}
				rows := make([][]string, 0, len(episodes))
				for _, ep := range episodes {
					rows = append(rows, []string{
						strconv.FormatInt(ep.ID, 10),
						ep.Code(),
						ep.Title,
						formatAirDate(ep.AirDate),
						ep.Status.String(),
						ep.Filename,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Episode", "Title", "Airdate", "Status", "File"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable output")
	return cmd
}

func newEpisodesMarkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <show> <code> <status>",
		Short: "Change an episode's status (need, need_forced, have, ignore, none)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, number, err := parseEpisodeCode(args[1])
			if err != nil {
				return err
			}
			status, err := media.ParseStatus(strings.ToLower(strings.TrimSpace(args[2])))
			if err != nil {
				return err
			}

			return ctx.withStore(func(reqCtx context.Context, store *library.Store) error {
				series, err := store.SeriesByName(reqCtx, args[0])
				if err != nil {
					return err
				}
				ep, err := store.Episode(reqCtx, series.ID, season, number)
				if err != nil {
					return err
				}
				if err := store.SetEpisodeStatus(reqCtx, ep.ID, status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %s %s marked %s\n",
					series.Name, ep.Code(), status)
				return nil
			})
		},
	}
}

// parseEpisodeCode accepts "S01E02" and bare "1x2" style codes.
func parseEpisodeCode(code string) (season, number int, err error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return 0, 0, fmt.Errorf("episode code must not be empty")
	}

	var sep string
	switch {
	case strings.HasPrefix(trimmed, "S") && strings.Contains(trimmed, "E"):
		trimmed = strings.TrimPrefix(trimmed, "S")
		sep = "E"
	case strings.Contains(trimmed, "X"):
		sep = "X"
	default:
		return 0, 0, fmt.Errorf("invalid episode code %q (expected S01E02 or 1x2)", code)
	}

	parts := strings.SplitN(trimmed, sep, 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid episode code %q (expected S01E02 or 1x2)", code)
	}
	season, err = strconv.Atoi(parts[0])
	if err != nil || season < 0 {
		return 0, 0, fmt.Errorf("invalid season in episode code %q", code)
	}
	number, err = strconv.Atoi(parts[1])
	if err != nil || number < 1 {
		return 0, 0, fmt.Errorf("invalid episode number in episode code %q", code)
	}
	return season, number, nil
}
