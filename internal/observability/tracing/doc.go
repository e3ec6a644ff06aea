// Package tracing provides OpenTelemetry tracing integration.
//
// The HTTP middleware extracts W3C trace context from incoming requests,
// opens a server span per request, and echoes the trace ID to clients via
// the X-Trace-Id header. The outbound HTTP client uses the same tracer to
// record per-request client spans.
//
// Example usage:
//
//	import "edgeguard/internal/observability/tracing"
//
//	mux := http.NewServeMux()
//	handler := tracing.Middleware(mux)
//
//	func process(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "form.validate")
//	    defer span.End()
//	}
package tracing
