// Package log provides a structured logging interface for medimg data loading.
//
// The interface is slog-compatible so the loader, pipeline and batch sequence can be
// handed any backend: the standard library's log/slog (see NewSlogLogger) or
// rs/zerolog (see NewZerologLogger). Diagnostics are advisory only; nothing in the
// data path branches on the configured level except to skip computing values that
// would only be logged.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ComponentKey, "generator",
//	    log.PhaseKey, "train",
//	)
//	logger.Info("Yielding batch",
//	    log.BatchIndexKey, 12,
//	    log.BatchSizeKey, 32,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. An error passed as the first field of
// Error is rendered under the "error" key.
type Logger interface {
	// Debug logs detailed diagnostics such as per-image paths and tensor statistics.
	Debug(msg string, fields ...any)

	// Info logs general operational information, e.g. which batch was yielded.
	Info(msg string, fields ...any)

	// Warn logs potentially problematic situations.
	Warn(msg string, fields ...any)

	// Error logs error conditions.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	// Use it to avoid computing expensive diagnostics:
	//
	//	if logger.Enabled(ctx, LevelDebug) {
	//	    mean, std := stats(batch)
	//	    logger.Debug("batch stats", "mean", mean, "std", std)
	//	}
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
