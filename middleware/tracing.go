package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// tracerName is the instrumentation scope name for recipeflow tracing.
const tracerName = "github.com/recipeflow/recipeflow"

// Tracing returns middleware that wraps step execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: recipeflow.execution.id, recipeflow.step.id,
// recipeflow.step.name, recipeflow.step.type. On error, the span status
// is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, executionID id.ExecutionID, step *recipe.Step, next Handler) error {
		ctx, span := tracer.Start(ctx, "recipeflow.step.execute",
			trace.WithAttributes(
				attribute.String("recipeflow.execution.id", executionID.String()),
				attribute.String("recipeflow.step.id", step.ID.String()),
				attribute.String("recipeflow.step.name", step.Name),
				attribute.String("recipeflow.step.type", string(step.Type)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
