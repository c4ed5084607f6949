package log

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// ZerologLogger adapts zerolog.Logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: l}
}

// NewZerologJSON builds a JSON zerolog logger writing to w at the given level.
func NewZerologJSON(w io.Writer, level Level) *ZerologLogger {
	return NewZerologLogger(zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger())
}

// InstallWarningSink routes errors.Warn through l. Warnings implementing
// zerolog.LogObjectMarshaler are logged as structured objects.
func InstallWarningSink(l *ZerologLogger) {
	errors.SetZerologWarnFunc(func(w error) {
		ev := l.logger.Warn()
		var m zerolog.LogObjectMarshaler
		if errors.As(w, &m) {
			ev = ev.Object("warning", m)
		}
		ev.Msg(w.Error())
	})
}

func (z *ZerologLogger) Debug(msg string, fields ...any) {
	z.emit(z.logger.Debug(), msg, fields)
}

func (z *ZerologLogger) Info(msg string, fields ...any) {
	z.emit(z.logger.Info(), msg, fields)
}

func (z *ZerologLogger) Warn(msg string, fields ...any) {
	z.emit(z.logger.Warn(), msg, fields)
}

func (z *ZerologLogger) Error(msg string, fields ...any) {
	z.emit(z.logger.Error(), msg, fields)
}

func (z *ZerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	fields = normalizeZerologFields(fields)
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	return &ZerologLogger{logger: ctx.Logger()}
}

func (z *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.logger.GetLevel() <= toZerologLevel(level)
}

func (z *ZerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			var m zerolog.LogObjectMarshaler
			if errors.As(err, &m) {
				ev = ev.Object("error_detail", m)
			}
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		ev = ev.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	ev.Msg(msg)
}

func normalizeZerologFields(fields []any) []any {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			return append([]any{ErrAttrKey, err.Error()}, fields[1:]...)
		}
	}
	return fields
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
