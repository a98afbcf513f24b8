package eventing

import "context"

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyActor    contextKey = "eventing.actor"
	contextKeyCorr     contextKey = "eventing.correlation_id"
)

// WithEnvelope attaches envelope metadata to context.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(contextKeyEnvelope).(Envelope)
	return env, ok
}

// WithActor records who triggered the events published under ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// WithCorrelationID sets the correlation id in context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorr, correlationID)
}

// MetaFromContext builds metadata from context.
func MetaFromContext(ctx context.Context) Meta {
	meta := Meta{}
	if actor, ok := ctx.Value(contextKeyActor).(string); ok {
		meta.Actor = actor
	}
	if corr, ok := ctx.Value(contextKeyCorr).(string); ok {
		meta.CorrelationID = corr
	}
	return meta
}
