package cmd

import (
	"context"

	"github.com/dukex/portalflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP when enabled. The exporter reads the standard
// OTEL_EXPORTER_OTLP_* variables.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.Noop(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
