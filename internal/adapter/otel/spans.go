package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentrelay"

// StartRunSpan starts a span for an agent run.
func StartRunSpan(ctx context.Context, sessionID string, maxSteps int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("run.max_steps", maxSteps),
		),
	)
}

// StartStepSpan starts a span for one step within a run.
func StartStepSpan(ctx context.Context, step int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step",
		trace.WithAttributes(
			attribute.Int("step.number", step),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a step.
func StartToolCallSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.tool", tool),
		),
	)
}
