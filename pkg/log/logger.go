package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// SetupLogger installs a JSON slog handler on os.Stdout as the slog default and
// returns a Logger backed by it.
func SetupLogger(loglevel string) Logger {
	return SetupLoggerTo(os.Stdout, loglevel)
}

// SetupLoggerTo is SetupLogger with an explicit destination.
func SetupLoggerTo(w io.Writer, loglevel string) Logger {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     ToLogLevel(loglevel),
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{
					Key:   "severity",
					Value: attr.Value,
				}
			case slog.MessageKey:
				attr = slog.Attr{
					Key:   "message",
					Value: attr.Value,
				}
			case slog.SourceKey:
				attr = slog.Attr{
					Key:   "logging.googleapis.com/sourceLocation",
					Value: attr.Value,
				}
			}
			return attr
		},
	}
	handler := slog.NewJSONHandler(w, &ops)
	errHandler := WrapByErrContextHandler(handler)
	logger := slog.New(errHandler)
	slog.SetDefault(logger)
	return NewSlogLogger(logger)
}

// ToLogLevel converts a configuration string into a slog level.
// It panics on unknown names; config validation rejects them earlier.
func ToLogLevel(level string) slog.Level {
	switch level {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
}

// ValidLevel reports whether ToLogLevel accepts level.
func ValidLevel(level string) bool {
	switch level {
	case "info", "debug", "warn", "error":
		return true
	}
	return false
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Debug(msg string, fields ...any) {
	s.logger.Debug(msg, normalizeFields(fields)...)
}

func (s *SlogLogger) Info(msg string, fields ...any) {
	s.logger.Info(msg, normalizeFields(fields)...)
}

func (s *SlogLogger) Warn(msg string, fields ...any) {
	s.logger.Warn(msg, normalizeFields(fields)...)
}

func (s *SlogLogger) Error(msg string, fields ...any) {
	s.logger.Error(msg, normalizeFields(fields)...)
}

func (s *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{logger: s.logger.With(normalizeFields(fields)...)}
}

func (s *SlogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.logger.Enabled(ctx, slog.Level(level))
}

// normalizeFields turns a leading error into an ErrAttr so the ErrContextHandler
// can attach its stack trace.
func normalizeFields(fields []any) []any {
	if len(fields) == 0 {
		return fields
	}
	if err, ok := fields[0].(error); ok {
		out := make([]any, 0, len(fields))
		out = append(out, ErrAttr(err))
		return append(out, fields[1:]...)
	}
	return fields
}
