// Package logger provides a small per-component façade over log/slog: a
// level filter and a "[component] " style prefix, matching the convention
// the rest of this runtime's structured logging follows.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR, FATAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps a *slog.Logger scoped to one component, with a bypassable
// level filter so a subsystem's logger can be raised to DEBUG independently
// of the process-wide slog level.
type Logger struct {
	level     Level
	component string
	base      *slog.Logger
}

// NewLogger returns a Logger writing JSON-less text lines to stdout,
// tagged with a "component" attribute.
func NewLogger(component string, level Level) *Logger {
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{
		level:     level,
		component: component,
		base:      slog.New(h).With(slog.String("component", component)),
	}
}

// SetLevel adjusts the minimum level this Logger emits at.
func (l *Logger) SetLevel(level Level) { l.level = level }

// SetOutput redirects output to w, preserving the component tag and level.
func (l *Logger) SetOutput(w io.Writer) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	l.base = slog.New(h).With(slog.String("component", l.component))
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.base.Log(context.Background(), level.slogLevel(), msg, args...)
}

// Debug/Info/Warn/Error log msg with structured key-value args, slog-style
// (alternating key, value).
func (l *Logger) Debug(msg string, args ...any) { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(ERROR, msg, args...) }

// Fatal logs at ERROR level then exits the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(ERROR, msg, args...)
	os.Exit(1)
}

// With returns a child Logger carrying additional structured attributes on
// every subsequent call, for per-request or per-subsystem scoping.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{level: l.level, component: l.component, base: l.base.With(args...)}
}

var defaultLogger = NewLogger("runtime", INFO)

// Package-level convenience functions delegate to a shared default Logger.
func SetLevel(level Level)               { defaultLogger.SetLevel(level) }
func SetOutput(w io.Writer)              { defaultLogger.SetOutput(w) }
func Debug(msg string, args ...any)      { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)       { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)       { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any)      { defaultLogger.Error(msg, args...) }
func Fatal(msg string, args ...any)      { defaultLogger.Fatal(msg, args...) }
