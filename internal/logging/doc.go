// Package logging assembles structured slog loggers and formatting helpers used
// across avmerge.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so runner and matcher code can
// tag log lines with job IDs, pair indexes, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
