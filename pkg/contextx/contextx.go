package contextx

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrNoValue = errors.New("no value in context")

type TraceID string

func (t TraceID) String() string {
	return string(t)
}

type (
	contextKeyTraceID struct{}
	contextKeyLogger  struct{}
)

func WithTraceID(ctx context.Context, traceID TraceID) context.Context {
	return context.WithValue(ctx, contextKeyTraceID{}, traceID)
}

func TraceIDFromContext(ctx context.Context) (TraceID, error) {
	traceID, ok := ctx.Value(contextKeyTraceID{}).(TraceID)
	if !ok {
		return "", fmt.Errorf("trace id: %w", ErrNoValue)
	}

	return traceID, nil
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger{}, logger)
}

// LoggerFromContextOrDefault never returns nil: without a logger in ctx it falls back to zap.L().
func LoggerFromContextOrDefault(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(contextKeyLogger{}).(*zap.Logger); ok && logger != nil {
		return logger
	}

	return zap.L()
}
