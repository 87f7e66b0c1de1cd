package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	pairIndexKey contextKey = "pair_index"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the batch identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the batch identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPairIndex annotates context with the 1-based position of the pair being merged.
func WithPairIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, pairIndexKey, index)
}

// PairIndexFromContext returns the pair index if present.
func PairIndexFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(pairIndexKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
