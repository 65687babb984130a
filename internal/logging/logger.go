// Package logging defines the structured logger passed to every bizkeeper
// service. SlogLogger is the only implementation.
package logging

import "context"

// Logger takes a message plus alternating key/value arguments:
//
//	log.Info(ctx, "backup created", "path", path, "encrypted", true)
//
// Warn is also used for failures a caller deliberately degrades, such as an
// unreadable offline queue.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that adds args to every record.
	With(args ...any) Logger
}
