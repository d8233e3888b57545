// Package logging builds the structured slog loggers used by the pulsecam
// daemon and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, the
// standard field keys every worker logs with, and the WarnWithContext and
// ErrorWithContext helpers that guarantee a failure line always carries an
// event type and a hint for the operator. Log retention for the daemon's own
// log files lives here as well.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits lines with the same shape.
package logging
