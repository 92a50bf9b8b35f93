// Package logging assembles structured slog loggers and formatting helpers used
// across technotaggr.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code automatically tags log
// lines with the session, audio file, backbone, and classifier being worked on.
// When a log directory is configured every record is also appended as JSON to
// technotaggr.log. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
