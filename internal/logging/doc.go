// Package logging builds the slog loggers used throughout aerial.
//
// It provides console and JSON handlers, attribute helpers so call sites do
// not import log/slog directly for attrs, and the standardized field keys
// (component, event_type, alert, ...) that the daemon and CLI rely on when
// filtering output. The console handler flattens groups into dotted keys and
// prints one record per line.
package logging
