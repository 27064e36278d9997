// Package logctx carries the request- or event-scoped logger through a context.
package logctx

import (
	"context"

	"github.com/iclalusta/e-commerce-microservice/internal/observability"
)

type loggerKey struct{}

func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// From returns nil when ctx carries no logger.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	if fallback == nil {
		return observability.NopLogger()
	}
	return fallback
}

// Append stores a logger that adds fields to the one already on ctx, or to
// fallback when ctx has none. Order, product and attempt ids are attached this
// way as a delivery moves through the bus and into a use case.
func Append(ctx context.Context, fallback observability.Logger, fields ...observability.Field) context.Context {
	base := FromOr(ctx, fallback)
	if len(fields) == 0 {
		return With(ctx, base)
	}
	return With(ctx, base.With(fields...))
}
