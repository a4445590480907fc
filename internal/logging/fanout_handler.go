package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// fanoutHandler sends each record to every handler whose own level admits it.
type fanoutHandler []slog.Handler

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	live := slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return fanoutHandler(live)
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(f, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, record.Level) {
			// Handlers may retain or mutate the record's attrs.
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanoutHandler) derive(fn func(slog.Handler) slog.Handler) fanoutHandler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = fn(h)
	}
	return next
}

// TeeLogger duplicates base's output into extra handlers, such as a per-job
// log file. Each handler filters by its own level.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	if base != nil {
		extra = append([]slog.Handler{base.Handler()}, extra...)
	}
	return slog.New(newFanoutHandler(extra...))
}
