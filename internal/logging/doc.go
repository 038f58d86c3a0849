// Package logging assembles the structured slog loggers used across
// cratewalk.
//
// It owns the console and JSON handlers and centralizes level parsing so
// command code does not hand-roll slog setup. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
