// Tracing instrumentation for coordinator runs.
package coordinator

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startRunSpan starts a span for one goal.
func startRunSpan(ctx context.Context, goal string, teams int) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "coordinator.run")
	span.SetAttributes(
		attribute.Int("goal.length", len(goal)),
		attribute.Int("coordinator.teams", teams),
	)
	return ctx, span
}

// endRunSpan ends the run span with the aggregated result.
func endRunSpan(span trace.Span, res *RunResult) {
	span.SetAttributes(
		attribute.Int("run.total", res.Total),
		attribute.Int("run.succeeded", res.Succeeded),
		attribute.Int("run.failed", res.Failed),
		attribute.Bool("run.escalated", res.Escalated),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Reason)
	}
	span.End()
}
