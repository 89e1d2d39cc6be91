// Package logging carries run identity through the log stream. The batch
// coordinator stores the batch id and source name in the context; this
// handler injects them into every record logged below it, so parser and
// store logs can be correlated to the batch that triggered them without
// threading attrs through every call.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	batchIDKey ctxKey = iota
	sourceKey
)

// WithBatch returns a context carrying the batch id.
func WithBatch(ctx context.Context, batchID int64) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// WithSource returns a context carrying the source name.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// BatchFromContext returns the batch id stored in ctx, or 0.
func BatchFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(batchIDKey).(int64); ok {
		return id
	}
	return 0
}

// SourceFromContext returns the source name stored in ctx, or "".
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok {
		return s
	}
	return ""
}

// ContextHandler is an slog.Handler that enriches records with the batch
// id and source name stored in the context, when present.
//
// Usage in main:
//
//	base := slog.NewJSONHandler(os.Stdout, nil)
//	slog.SetDefault(slog.New(logging.NewContextHandler(base)))
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps the given handler.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record with context values before delegating.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if id := BatchFromContext(ctx); id != 0 {
		record.AddAttrs(slog.Int64("batch_id", id))
	}
	if s := SourceFromContext(ctx); s != "" {
		record.AddAttrs(slog.String("source", s))
	}
	return h.inner.Handle(ctx, record)
}

// WithAttrs returns a new ContextHandler with additional attributes on the
// inner handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new ContextHandler with a group prefix on the inner
// handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
