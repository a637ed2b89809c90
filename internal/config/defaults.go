package config

const (
	defaultLibraryDir         = "~/tv"
	defaultIncomingDir        = "~/.local/share/aerial/incoming"
	defaultLogDir             = "~/.local/share/aerial/logs"
	defaultAPIBind            = "127.0.0.1:8624"
	defaultCheckHours         = "4,16"
	defaultEarliestMarginDays = 10
	defaultParallel           = 2
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultEasynewsRetries    = 3
	defaultRequestTimeout     = 30
	defaultNtfyTimeout        = 10
	defaultTorrentDataDir     = "~/.local/share/aerial/torrents"
	defaultTorrentStallCutoff = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir:  defaultLibraryDir,
			IncomingDir: defaultIncomingDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Searchers: Searchers{
			Hours:              defaultCheckHours,
			EarliestMarginDays: defaultEarliestMarginDays,
		},
		Retrievers: Retrievers{
			Enabled:  []string{"http"},
			Parallel: defaultParallel,
		},
		Notifiers: Notifiers{
			Enabled: []string{"ntfy"},
		},
		Naming: Naming{
			Rename: true,
		},
		Easynews: Easynews{
			Retries: defaultEasynewsRetries,
		},
		Torznab: Torznab{
			RequestTimeout: defaultRequestTimeout,
		},
		Torrent: Torrent{
			DataDir:     defaultTorrentDataDir,
			StallCutoff: defaultTorrentStallCutoff,
		},
		Ntfy: Ntfy{
			RequestTimeout: defaultNtfyTimeout,
		},
		LibraryRefresh: LibraryRefresh{
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
