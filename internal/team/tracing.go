// Tracing instrumentation for team workflows.
package team

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/crew/internal/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startWorkflowSpan starts a span for one workflow.
func (t *Team) startWorkflowSpan(ctx context.Context, parent *task.Task) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "team."+t.name)
	span.SetAttributes(
		attribute.String("team.name", t.name),
		attribute.String("task.id", parent.ID),
		attribute.Int("team.max_iterations", t.maxIterations),
	)
	return ctx, span
}

// endWorkflowSpan ends the workflow span with the result.
func (t *Team) endWorkflowSpan(span trace.Span, res *WorkflowResult) {
	span.SetAttributes(
		attribute.Bool("workflow.success", res.Success),
		attribute.Int("workflow.iterations", res.Iterations),
		attribute.Bool("workflow.escalated", res.Escalated),
	)
	if err := res.Err(); err != nil {
		span.RecordError(err)
	}
	span.End()
}
