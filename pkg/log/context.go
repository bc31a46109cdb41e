package log

import (
	"context"

	"github.com/rs/zerolog"
)

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// WithStr returns a copy of ctx whose logger carries one more field.
func WithStr(ctx context.Context, key, value string) context.Context {
	l := Ctx(ctx)
	return l.With().Str(key, value).Logger().WithContext(ctx)
}

// Ctx returns the logger stored in ctx, or the global logger when there
// is none.
func Ctx(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return L()
}
