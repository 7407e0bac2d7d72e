// Package logging provides a tiny abstraction over slog so the execution core
// can depend on a minimal interface while callers plug in any structured
// logger. The default is a no-op; a slog adapter and a convenience constructor
// cover the common cases.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal structured logging interface used across Convoke.
// Args follow the slog key/value convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from an existing *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// Options configures New.
type Options struct {
	Level     slog.Level
	Format    string // "json" (default) or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// New builds a Logger writing structured records to the configured output.
func New(optFns ...func(o *Options)) Logger {
	opts := Options{Level: slog.LevelInfo, Format: "json", Output: os.Stdout}
	for _, fn := range optFns {
		fn(&opts)
	}

	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}
	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(opts.Output, hopts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, hopts)
	}

	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return NewSlogAdapter(logger)
}

// With returns a Logger carrying additional key/value context when the
// underlying implementation supports it, else the original logger.
func With(l Logger, args ...any) Logger {
	if sa, ok := l.(*SlogAdapter); ok {
		return &SlogAdapter{Logger: sa.Logger.With(args...)}
	}
	return l
}

// NoOpLogger discards all log messages. It is the default when no logger is
// configured.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// OrNoop substitutes a NoOpLogger for nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
