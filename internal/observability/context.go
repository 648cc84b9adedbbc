package observability

import (
	"context"
	"log/slog"
)

type ctxKey string

const queryIDKey ctxKey = "query_id"

func ContextWithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

func QueryIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(queryIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// Logger returns logger annotated with the query id carried by ctx, if any.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := QueryIDFromContext(ctx); id != "" {
		return logger.With(slog.String("query_id", id))
	}
	return logger
}
