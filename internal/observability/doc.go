// Package observability provides production-grade observability infrastructure
// including structured logging and OpenTelemetry tracing.
//
// This package centralizes observability concerns to enable:
//   - Request tracing across service boundaries
//   - Structured logging with context propagation
//   - Correlation of security decisions with the requests that triggered them
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - tracing: OpenTelemetry tracing integration
//
// Prometheus metrics live with the components they measure (the rate
// limiter, the security middleware, and the outbound HTTP client) rather
// than in a central registry, so each can run on its own registry in tests.
//
// Example usage:
//
//	import "edgeguard/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("edge server started")
//	}
package observability
