package middleware

import "context"

type contextKey string

const ctxActor contextKey = "actor"

// DefaultActor is recorded when a request carries no actor header.
const DefaultActor = "system"

// ActorFromContext returns the acting user, falling back to DefaultActor.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return DefaultActor
	}
	if v, ok := ctx.Value(ctxActor).(string); ok && v != "" {
		return v
	}
	return DefaultActor
}

// WithActor injects the acting user into the context for downstream handlers.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
