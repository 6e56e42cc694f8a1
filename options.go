package thinggraph

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
)

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	logger         *logging.Logger
	registry       *schema.Registry
	store          store.Store
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithLogger sets the logger. If not provided, one is built from the
// config's log section.
func WithLogger(l *logging.Logger) Option {
	return func(c *openConfig) {
		c.logger = l
	}
}

// WithRegistry uses reg instead of loading schema.path.
func WithRegistry(reg *schema.Registry) Option {
	return func(c *openConfig) {
		c.registry = reg
	}
}

// WithStore uses s instead of opening the configured backend. The pipeline
// still closes it.
func WithStore(s store.Store) Option {
	return func(c *openConfig) {
		c.store = s
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *openConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *openConfig) {
		c.meterProvider = mp
	}
}
