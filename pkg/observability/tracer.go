// Package observability wires OpenTelemetry tracing and metrics into the
// engine. Without a registered SDK provider every call degrades to a no-op,
// so instrumented code paths carry no conditional plumbing.
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GetTracer returns the named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
