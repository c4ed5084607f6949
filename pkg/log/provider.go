package log

import (
	"io"
	"log/slog"
	"sync"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewSlogLogger(slog.New(WrapByErrContextHandler(slog.NewJSONHandler(io.Discard, nil))))
)

// GetLogger returns the process-wide default logger. Until SetLogger is called
// it discards everything.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLogger replaces the process-wide default logger.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetLoggerWithName returns the default logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// Setup builds a logger for format ("json" for slog, "zerolog") and level,
// installs it as the default and returns it. With zerolog, errors.Warn
// warnings are routed through the same logger.
func Setup(w io.Writer, format, level string) (Logger, error) {
	if !ValidLevel(level) {
		return nil, errors.NewConfigurationError("log.level", "unknown level", level)
	}
	var l Logger
	switch format {
	case "", "json":
		l = SetupLoggerTo(w, level)
	case "zerolog":
		z := NewZerologJSON(w, Level(ToLogLevel(level)))
		InstallWarningSink(z)
		l = z
	default:
		return nil, errors.NewConfigurationError("log.format", "unknown format", format)
	}
	SetLogger(l)
	return l, nil
}
