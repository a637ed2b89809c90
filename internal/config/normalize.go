package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlugins()
	if err := c.normalizeTorrent(); err != nil {
		return err
	}
	c.normalizeTimeouts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		c.Paths.LibraryDir = defaultLibraryDir
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.IncomingDir) == "" {
		c.Paths.IncomingDir = defaultIncomingDir
	}
	if c.Paths.IncomingDir, err = expandPath(c.Paths.IncomingDir); err != nil {
		return fmt.Errorf("paths.incoming_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizePlugins() {
	c.Searchers.Enabled = cleanNames(c.Searchers.Enabled)
	c.Retrievers.Enabled = cleanNames(c.Retrievers.Enabled)
	c.Notifiers.Enabled = cleanNames(c.Notifiers.Enabled)
	if strings.TrimSpace(c.Searchers.Hours) == "" {
		c.Searchers.Hours = defaultCheckHours
	}
	if c.Searchers.EarliestMarginDays <= 0 {
		c.Searchers.EarliestMarginDays = defaultEarliestMarginDays
	}
	if c.Retrievers.Parallel <= 0 {
		c.Retrievers.Parallel = defaultParallel
	}
	if c.Easynews.Retries <= 0 {
		c.Easynews.Retries = defaultEasynewsRetries
	}
}

func (c *Config) normalizeTorrent() error {
	if strings.TrimSpace(c.Torrent.DataDir) == "" {
		c.Torrent.DataDir = defaultTorrentDataDir
	}
	expanded, err := expandPath(c.Torrent.DataDir)
	if err != nil {
		return fmt.Errorf("torrent.data_dir: %w", err)
	}
	c.Torrent.DataDir = expanded
	if c.Torrent.StallCutoff <= 0 {
		c.Torrent.StallCutoff = defaultTorrentStallCutoff
	}
	return nil
}

func (c *Config) normalizeTimeouts() {
	if c.Torznab.RequestTimeout <= 0 {
		c.Torznab.RequestTimeout = defaultRequestTimeout
	}
	if c.Ntfy.RequestTimeout <= 0 {
		c.Ntfy.RequestTimeout = defaultNtfyTimeout
	}
	if c.LibraryRefresh.RequestTimeout <= 0 {
		c.LibraryRefresh.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func cleanNames(names []string) []string {
	out := names[:0]
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func parseHours(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	hours := make([]int, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hour, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid hour %q", part)
		}
		if hour < 0 || hour > 23 {
			return nil, fmt.Errorf("hour %d out of range", hour)
		}
		if _, ok := seen[hour]; ok {
			continue
		}
		seen[hour] = struct{}{}
		hours = append(hours, hour)
	}
	if len(hours) == 0 {
		return nil, fmt.Errorf("no hours in %q", value)
	}
	sort.Ints(hours)
	return hours, nil
}
