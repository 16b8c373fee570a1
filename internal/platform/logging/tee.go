package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// tee hands each record to every sink whose level admits it.
type tee struct {
	sinks []slog.Handler
}

// Tee combines sinks into one handler. Nil sinks are dropped; a single
// remaining sink is returned unwrapped.
func Tee(sinks ...slog.Handler) slog.Handler {
	kept := slices.DeleteFunc(slices.Clone(sinks), func(h slog.Handler) bool { return h == nil })

	if len(kept) == 1 {
		return kept[0]
	}

	return &tee{sinks: kept}
}

func (t *tee) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t.sinks, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

//nolint:gocritic // slog.Handler passes records by value
func (t *tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range t.sinks {
		if !h.Enabled(ctx, r.Level) {
			continue
		}

		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *tee) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *tee) derive(f func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(t.sinks))
	for i, h := range t.sinks {
		next[i] = f(h)
	}

	return &tee{sinks: next}
}
