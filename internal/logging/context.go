package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey struct{}

// WithLogger returns a context carrying logger, typically one already
// annotated with request-scoped fields.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or fallback. A nil fallback
// yields a no-op logger.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
			return logger
		}
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}
