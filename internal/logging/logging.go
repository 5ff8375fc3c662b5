// Package logging defines the EventSink the core emits operational events
// through. Per spec.md §1 the core never owns telemetry setup — it only
// calls into an injected sink — so this package provides the interface, a
// no-op implementation, and a slog-backed implementation matching the teacher's slog.Info/
// slog.Warn/slog.Error call shape (internal/db/db.go, internal/config/config.go
// in the teacher project).
package logging

import (
	"log/slog"
	"os"
)

// EventSink receives structured operational events from every layer of the
// core: the pool, the worker, the cache, and the adapters. attrs are passed
// through as alternating key/value pairs, matching slog's Info/Warn/Error
// signature so the default implementation can forward them directly.
type EventSink interface {
	Debug(msg string, attrs ...any)
	Info(msg string, attrs ...any)
	Warn(msg string, attrs ...any)
	Error(msg string, attrs ...any)
}

// SlogSink adapts a *slog.Logger to EventSink. Callers construct it
// explicitly; constructors passed a nil sink fall back to NopSink instead.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger, or the default slog logger if logger is nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// NewTextSink builds an EventSink writing leveled text to os.Stderr, matching the
// teacher's preference for human-readable logs over JSON in its own
// config.go logConfig calls.
func NewTextSink(level slog.Level) *SlogSink {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogSink{logger: slog.New(handler)}
}

func (s *SlogSink) Debug(msg string, attrs ...any) { s.logger.Debug(msg, attrs...) }
func (s *SlogSink) Info(msg string, attrs ...any)  { s.logger.Info(msg, attrs...) }
func (s *SlogSink) Warn(msg string, attrs ...any)  { s.logger.Warn(msg, attrs...) }
func (s *SlogSink) Error(msg string, attrs ...any) { s.logger.Error(msg, attrs...) }

// NopSink discards every event. Useful for tests that don't want log noise.
type NopSink struct{}

func (NopSink) Debug(string, ...any) {}
func (NopSink) Info(string, ...any)  {}
func (NopSink) Warn(string, ...any)  {}
func (NopSink) Error(string, ...any) {}

// LevelFromString parses the module's own "log_level" config value the way
// the teacher's internal/config validates and logs it ("INFO", "WARN", ...).
func LevelFromString(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
