// Package logctx carries a zerolog logger through context.Context so that
// per-worker fields (rank, world_size, size_mb) follow a measurement down
// through the sweep, the coordinator and the collective calls.
//
// Usage:
//
//	ctx = logctx.WithWorker(ctx, rank, size)
//	...
//	log := logctx.FromContext(ctx)
//	log.Info().Msg("barrier reached")
package logctx

import (
	"context"

	"github.com/eunmann/numabench/pkg/logging"
	"github.com/rs/zerolog"
)

// loggerKey is the private key type for storing loggers in context.
type loggerKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. If the context is nil
// or carries no logger, the process logger from pkg/logging is returned.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a new context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt returns a new context whose logger has the int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithWorker tags the context logger with a worker's rank and group size.
func WithWorker(ctx context.Context, rank, size int) context.Context {
	logger := FromContext(ctx).With().Int("rank", rank).Int("world_size", size).Logger()
	return WithLogger(ctx, logger)
}

// WithSize tags the context logger with the buffer size being measured.
func WithSize(ctx context.Context, sizeMB int) context.Context {
	return WithInt(ctx, "size_mb", sizeMB)
}
