// Package logging assembles structured slog loggers and formatting helpers used
// across inboxwatch.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standard attribute keys (file, job outcome, exit
// code, event type) so the watcher, scheduler, and CLI emit lines with the same
// shape. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
package logging
