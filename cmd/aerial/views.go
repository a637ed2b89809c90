package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"aerial/internal/scheduler"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

func colorize(s, color string, enabled bool) string {
	if !enabled {
		return s
	}
	return color + s + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func buildActiveRows(items []scheduler.EpisodeStatus) [][]string {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.EpisodeID, 10),
			item.Series,
			item.Code,
			item.Candidate,
			formatProgress(item.Position, item.Total, item.Percent),
		})
	}
	return rows
}

func buildQueuedRows(items []scheduler.EpisodeStatus) [][]string {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.EpisodeID, 10),
			item.Series,
			item.Code,
			formatAirDate(item.AirDate),
		})
	}
	return rows
}

// formatProgress renders "512 MiB / 1.0 GiB (50.0%)", degrading when the
// transfer size is unknown.
func formatProgress(position, total int64, percent float64) string {
	if total <= 0 {
		if position <= 0 {
			return "-"
		}
		return humanize.IBytes(uint64(position))
	}
	return fmt.Sprintf("%s / %s (%.1f%%)",
		humanize.IBytes(uint64(max(position, 0))),
		humanize.IBytes(uint64(total)),
		percent)
}

func formatAirDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", t.Format("2006-01-02"), humanize.Time(t))
}
