package relay

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bryanEnzee/skillance-relay/pkg/relay"

var (
	tracer = otel.Tracer(tracerName)
)

// WithTracerProvider replaces the global tracer provider for the relayer's spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Relayer) { r.tracer = tp.Tracer(tracerName) }
}
