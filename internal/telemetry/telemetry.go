// Package telemetry wires the engine's Prometheus registry and OpenTelemetry
// tracer provider. Span export is intentionally a no-op here: the module
// pulls in go.opentelemetry.io/otel's core SDK for span creation around
// engine operations, but not a span-exporter backend (no exporter package
// appears anywhere in the retrieval pack's go.mod files) — see DESIGN.md.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles a Prometheus registry and an otel TracerProvider
// constructed around it (spec's ambient observability stack, not part
// of the core engine contract).
type Telemetry struct {
	Registry       *prometheus.Registry
	TracerProvider *sdktrace.TracerProvider
	Tracer         trace.Tracer
}

// New constructs a fresh Prometheus registry (never the global default,
// so tests can build multiple independent Engines — spec §9 "avoid
// process-wide singletons") and an always-sampling TracerProvider
// registered as the global otel provider.
func New(serviceName string) *Telemetry {
	reg := prometheus.NewRegistry()

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return &Telemetry{
		Registry:       reg,
		TracerProvider: tp,
		Tracer:         tp.Tracer(serviceName),
	}
}

// Shutdown flushes and stops the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.TracerProvider.Shutdown(ctx)
}

// Handler returns the promhttp handler serving this registry's metrics.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{})
}
