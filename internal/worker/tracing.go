// Tracing instrumentation for workers.
package worker

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/crew/internal/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startTaskSpan starts a span for one task execution.
func (w *Worker) startTaskSpan(ctx context.Context, t *task.Task, class Classification) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "worker."+string(w.role))
	span.SetAttributes(
		attribute.String("worker.name", w.name),
		attribute.String("task.id", t.ID),
		attribute.String("task.kind", string(t.Kind)),
		attribute.String("task.class", string(class.Class)),
	)
	return ctx, span
}

// endTaskSpan ends the task span with the result.
func (w *Worker) endTaskSpan(span trace.Span, res *TaskResult) {
	span.SetAttributes(
		attribute.Bool("task.success", res.Success),
		attribute.Int("task.attempts", res.Attempts),
		attribute.Int("task.tool_calls", res.Metrics.Total),
	)
	if res.Error != "" {
		span.SetAttributes(attribute.String("task.error", res.Error))
	}
	span.End()
}
