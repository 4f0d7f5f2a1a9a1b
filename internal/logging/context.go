package logging

import (
	"context"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	partKey    contextKey = "part"
	writeIDKey contextKey = "write_id"
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, falls back to global
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return global
}

// WithPart tags the context with the name of the part being written
func WithPart(ctx context.Context, part string) context.Context {
	return context.WithValue(ctx, partKey, part)
}

// WithWriteID tags the context with the id of the part writer
func WithWriteID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, writeIDKey, id)
}

func extractContextFields(ctx context.Context) []interface{} {
	var fields []interface{}

	if part, ok := ctx.Value(partKey).(string); ok && part != "" {
		fields = append(fields, "part", part)
	}

	if id, ok := ctx.Value(writeIDKey).(string); ok && id != "" {
		fields = append(fields, "write_id", id)
	}

	return fields
}

// InfoCtx logs an info message with context
func InfoCtx(ctx context.Context, msg string, fields ...interface{}) {
	FromContext(ctx).WithContext(ctx).Info(msg, fields...)
}

// WarnCtx logs a warning message with context
func WarnCtx(ctx context.Context, msg string, fields ...interface{}) {
	FromContext(ctx).WithContext(ctx).Warn(msg, fields...)
}

// ErrorCtx logs an error message with context
func ErrorCtx(ctx context.Context, msg string, fields ...interface{}) {
	FromContext(ctx).WithContext(ctx).Error(msg, fields...)
}
