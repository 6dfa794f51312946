package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanStart    = "streamcore.agent_instance.start"
	SpanStop     = "streamcore.agent_instance.stop"
	SpanDispatch = "streamcore.dispatch"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartLifecycleSpan starts a span for an agent instance start or stop.
	// name is SpanStart or SpanStop.
	StartLifecycleSpan(ctx context.Context, name, statement string, agentInstanceID int) (context.Context, trace.Span)

	// StartDispatchSpan starts a span for routing one event.
	StartDispatchSpan(ctx context.Context, eventType string, matches int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err when non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager on the global OTel tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{tracer: otel.Tracer("streamcore")}
}

// NewSpanManagerWithProvider returns a SpanManager bound to provider.
func NewSpanManagerWithProvider(provider trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: provider.Tracer("streamcore")}
}

func (m *otelSpanManager) StartLifecycleSpan(ctx context.Context, name, statement string, agentInstanceID int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("statement", statement),
			attribute.Int("agent_instance.id", agentInstanceID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventType string, matches int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, SpanDispatch,
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.Int("dispatch.matches", matches),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// EndSpanWithError completes a span, recording err when non-nil.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
