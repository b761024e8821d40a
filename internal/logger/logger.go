// Package logger provides a simple leveled logger for the application.
// It supports three levels: off (no output), normal (info/warn/error),
// and verbose (includes debug). Records are written through log/slog so
// the server can emit JSON while the terminal player keeps plain text.
// The logger is safe for concurrent use.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// slogOff sits above every level slog emits.
const slogOff = slog.Level(100)

// ParseLevel maps a config/env string to a Level. Unknown values are normal.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "off", "quiet", "none":
		return LevelOff
	case "debug", "verbose":
		return LevelVerbose
	default:
		return LevelNormal
	}
}

// Option configures the logger.
type Option func(*options)

type options struct {
	json bool
}

// WithJSON switches the output to one JSON object per line.
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// Logger is a leveled logger. All methods are safe for concurrent use.
type Logger struct {
	level *slog.LevelVar
	slog  *slog.Logger
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used.
func New(level Level, out io.Writer, opts ...Option) *Logger {
	if out == nil {
		out = os.Stderr
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	lv := new(slog.LevelVar)
	lv.Set(toSlog(level))

	hopts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if o.json {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}

	return &Logger{level: lv, slog: slog.New(h)}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	return New(LevelOff, io.Discard)
}

// SetLevel changes the log level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(toSlog(level))
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	switch l.level.Level() {
	case slog.LevelDebug:
		return LevelVerbose
	case slogOff:
		return LevelOff
	default:
		return LevelNormal
	}
}

// Slog exposes the underlying structured logger for libraries and
// middleware that want key/value records.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, format, args)
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, format, args)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, format, args)
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) {
	l.log(slog.LevelError, format, args)
}

func (l *Logger) log(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	l.slog.Log(ctx, level, fmt.Sprintf(format, args...))
}

func toSlog(level Level) slog.Level {
	switch level {
	case LevelOff:
		return slogOff
	case LevelVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
