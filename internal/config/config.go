package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	LibraryDir  string `toml:"library_dir"`
	IncomingDir string `toml:"incoming_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Searchers configures discovery plugin dispatch.
type Searchers struct {
	// Enabled lists searcher plugin names in priority order.
	Enabled []string `toml:"enabled"`
	// Hours holds the local hours of day ("4,16") at which the daemon
	// checks for newly aired episodes.
	Hours string `toml:"hours"`
	// EarliestMarginDays widens the earliest-date window so releases posted
	// before the listed airdate are still found.
	EarliestMarginDays int `toml:"earliest_margin_days"`
}

// Retrievers configures transfer plugin dispatch.
type Retrievers struct {
	// Enabled lists retriever plugin names in priority order.
	Enabled []string `toml:"enabled"`
	// Parallel bounds concurrent downloads. Hot-reloadable via SIGHUP or the
	// /api/limit endpoint.
	Parallel int `toml:"parallel"`
}

// Notifiers configures notification plugin dispatch.
type Notifiers struct {
	Enabled []string `toml:"enabled"`
}

// Naming controls how retrieved files are named on disk.
type Naming struct {
	// Rename replaces the source filename with "<Series> <code><ext>".
	Rename bool `toml:"rename"`
}

// Easynews contains credentials for the easynews searcher.
type Easynews struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Retries  int    `toml:"retries"`
}

// Torznab contains settings for the torznab searcher.
type Torznab struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Torrent contains settings for the torrent retriever.
type Torrent struct {
	DataDir     string `toml:"data_dir"`
	ListenPort  int    `toml:"listen_port"`
	DisableDHT  bool   `toml:"disable_dht"`
	StallCutoff int    `toml:"stall_cutoff_minutes"`
}

// Ntfy contains settings for push notifications.
type Ntfy struct {
	Topic          string `toml:"topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// LibraryRefresh contains the media-server refresh hook settings.
type LibraryRefresh struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for aerial.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Searchers: discovery plugin order and check schedule
//   - Retrievers: transfer plugin order and the parallel download limit
//   - Notifiers: notification plugin order
//   - Naming: on-disk naming policy for retrieved episodes
//   - Easynews / Torznab / Torrent: plugin-specific settings
//   - Ntfy / LibraryRefresh: notification sinks
//   - Logging: log format and level
type Config struct {
	Paths          Paths          `toml:"paths"`
	Searchers      Searchers      `toml:"searchers"`
	Retrievers     Retrievers     `toml:"retrievers"`
	Notifiers      Notifiers      `toml:"notifiers"`
	Naming         Naming         `toml:"naming"`
	Easynews       Easynews       `toml:"easynews"`
	Torznab        Torznab        `toml:"torznab"`
	Torrent        Torrent        `toml:"torrent"`
	Ntfy           Ntfy           `toml:"ntfy"`
	LibraryRefresh LibraryRefresh `toml:"library_refresh"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aerial/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("aerial.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.IncomingDir, c.Paths.LogDir, c.Torrent.DataDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// CheckHours parses Searchers.Hours into a sorted list of hours of day.
// Invalid entries cause an error so callers can fall back to defaults.
func (c *Config) CheckHours() ([]int, error) {
	return parseHours(c.Searchers.Hours)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
