// Package logger provides the structured logging interface used across the
// gateway. It wraps log/slog so components can log leveled messages either as
// key/value pairs or printf-style.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger defines the interface for structured logging with multiple levels.
// Every component receives a Logger at construction time; there is no
// package-level logger.
type Logger interface {
	Debug(msg string, args ...any)
	Debugf(format string, args ...any)

	Info(msg string, args ...any)
	Infof(format string, args ...any)

	Warn(msg string, args ...any)
	Warnf(format string, args ...any)

	Error(msg string, args ...any)
	Errorf(format string, args ...any)
}

// NoopLogger is a logger that discards all log messages.
// It's useful for testing or when logging is completely disabled.
type NoopLogger struct{}

func (l NoopLogger) Debug(msg string, args ...any)     {}
func (l NoopLogger) Debugf(format string, args ...any) {}
func (l NoopLogger) Info(msg string, args ...any)      {}
func (l NoopLogger) Infof(format string, args ...any)  {}
func (l NoopLogger) Warn(msg string, args ...any)      {}
func (l NoopLogger) Warnf(format string, args ...any)  {}
func (l NoopLogger) Error(msg string, args ...any)     {}
func (l NoopLogger) Errorf(format string, args ...any) {}

// SlogLogger wraps Go's log/slog.Logger to implement our Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a LOG_FORMAT value onto a Format, defaulting to text.
func ParseFormat(value string) Format {
	if strings.EqualFold(strings.TrimSpace(value), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// NewSlogLogger creates a new SlogLogger with the specified level.
// It uses a text handler that writes to stderr.
func NewSlogLogger(level slog.Level) *SlogLogger {
	return NewSlogLoggerWithWriter(os.Stderr, level, FormatText)
}

// NewSlogLoggerWithWriter creates a SlogLogger writing to w in the given format.
// Containers ship JSON; terminals get text.
func NewSlogLoggerWithWriter(w io.Writer, level slog.Level, format Format) *SlogLogger {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{
		logger: slog.New(handler),
	}
}

// NewDefaultLogger creates a logger with appropriate defaults based on debug mode.
// If debug is true, it logs at Debug level; otherwise, it logs at Info level.
func NewDefaultLogger(debug bool) Logger {
	return New(debug, FormatText)
}

// New creates a stderr logger at Debug or Info level in the given format.
func New(debug bool, format Format) Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return NewSlogLoggerWithWriter(os.Stderr, level, format)
}

// With returns a logger that adds the given attributes to every record.
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

// Debug logs a debug-level message with optional structured attributes
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Debugf logs a debug-level message with printf-style formatting
func (l *SlogLogger) Debugf(format string, args ...any) {
	l.logger.Debug(sprintf(format, args...))
}

// Info logs an info-level message with optional structured attributes
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Infof logs an info-level message with printf-style formatting
func (l *SlogLogger) Infof(format string, args ...any) {
	l.logger.Info(sprintf(format, args...))
}

// Warn logs a warning-level message with optional structured attributes
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Warnf logs a warning-level message with printf-style formatting
func (l *SlogLogger) Warnf(format string, args ...any) {
	l.logger.Warn(sprintf(format, args...))
}

// Error logs an error-level message with optional structured attributes
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Errorf logs an error-level message with printf-style formatting
func (l *SlogLogger) Errorf(format string, args ...any) {
	l.logger.Error(sprintf(format, args...))
}

// sprintf is a helper function that safely formats strings using fmt.Sprintf
func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
