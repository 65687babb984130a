package logging

import (
	"context"
	"io"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to Logger. Every call goes through the
// context-aware slog methods so handlers can pick values from ctx.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// NewJSONLogger builds a SlogLogger writing JSON records at the given level.
func NewJSONLogger(w io.Writer, level slog.Level) *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// New is the process logger: JSON to w, debug records only when verbose.
func New(w io.Writer, verbose bool) *SlogLogger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return NewJSONLogger(w, level)
}

// NewNopLogger returns a logger that drops every record.
func NewNopLogger() *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	s.l.Log(ctx, level, msg, args...)
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelDebug, msg, args)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelInfo, msg, args)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelWarn, msg, args)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelError, msg, args)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
