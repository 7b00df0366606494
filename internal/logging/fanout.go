package logging

import (
	"context"
	"log/slog"
)

// Fanout duplicates log records across several slog.Handlers, so stdout and
// the DB audit handler each see the records they are enabled for.
type Fanout struct {
	handlers []slog.Handler
}

func NewFanout(handlers ...slog.Handler) *Fanout {
	return &Fanout{handlers: handlers}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.apply(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	return f.apply(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) apply(fn func(slog.Handler) slog.Handler) *Fanout {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = fn(h)
	}
	return &Fanout{handlers: handlers}
}
