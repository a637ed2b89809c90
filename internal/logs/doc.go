// Package logs reads the daemon log file for the CLI: the last N lines,
// optionally followed as the daemon appends more.
package logs
