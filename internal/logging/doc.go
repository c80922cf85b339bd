// Package logging assembles structured slog loggers used across docarchive.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code tags every line with the
// document ID, owner, step name, and correlation ID. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
