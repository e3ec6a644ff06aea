package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the edgeguard application.
var tracer = otel.Tracer("edgeguard")

// GetTracer returns the global tracer for creating spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "security.pipeline")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}
