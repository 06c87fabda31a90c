package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey int

const loggerKey contextKey = iota

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default logger
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// WithFields returns a context whose logger carries the given string fields
func WithFields(ctx context.Context, fields map[string]string) context.Context {
	lc := FromContext(ctx).With()
	for k, v := range fields {
		lc = lc.Str(k, v)
	}
	logger := lc.Logger()
	return WithLogger(ctx, &logger)
}
