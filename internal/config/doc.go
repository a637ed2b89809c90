// Package config loads, validates, and normalizes aerial configuration.
//
// Configuration lives in a single TOML file, by default at
// ~/.config/aerial/config.toml. Load applies defaults for missing keys,
// expands ~ in path values, and validates the result so the rest of the
// program can trust every field.
package config
