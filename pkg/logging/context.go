package logging

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
	poiIDKey
)

// WithRequestID stores a request id picked up by every log entry made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithRunID stores a discovery run id in ctx.
func WithRunID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithPOIID stores a POI id in ctx.
func WithPOIID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, poiIDKey, id)
}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

func RunIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(runIDKey).(int64)
	return id, ok
}

func POIIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(poiIDKey).(int64)
	return id, ok
}
