package logging

import (
	"context"
	"log/slog"
)

// minLevelHandler drops records below floor before delegating.
type minLevelHandler struct {
	next  slog.Handler
	floor slog.Level
}

func (h minLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h minLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.floor {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h minLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return minLevelHandler{next: h.next.WithAttrs(attrs), floor: h.floor}
}

func (h minLevelHandler) WithGroup(name string) slog.Handler {
	return minLevelHandler{next: h.next.WithGroup(name), floor: h.floor}
}

// WithLevelOverride raises the minimum level of logger to level. The global
// handler level still applies, so an override cannot make a logger more
// verbose than the configured base level.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if existing, ok := next.(minLevelHandler); ok {
		next = existing.next
	}
	return slog.New(minLevelHandler{next: next, floor: level})
}
