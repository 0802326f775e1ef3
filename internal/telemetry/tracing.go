package telemetry

import (
	"context"
	"fmt"

	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ServiceVersion is reported as the service.version resource attribute.
var ServiceVersion = "dev"

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a Jaeger-exporting tracer provider as the global provider.
// When tracing is disabled it leaves the no-op provider in place and returns
// a no-op shutdown.
// Parameters:
//   - cfg: tracing configuration.
//
// Returns:
//   - ShutdownFunc: flushes and stops the provider; call it on exit.
//   - error: non-nil if the exporter or resource could not be built.
func Init(cfg config.TracingConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		logger.Debug("Tracing disabled")
		return noopShutdown, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.With(logger.Fields{
		logger.FieldComponent: "telemetry",
	}).Info(context.Background(), "Tracing initialized: service=%s, endpoint=%s", cfg.ServiceName, cfg.JaegerEndpoint)

	return tp.Shutdown, nil
}

// newResource describes this service on top of the SDK defaults. The service
// attributes carry no schema URL so they merge with whatever schema the
// linked SDK version reports.
func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
}
