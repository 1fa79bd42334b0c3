// Package openobserve installs the global OpenTelemetry tracer provider, exporting
// spans over OTLP/HTTP to an OpenObserve (or any OTLP) endpoint.
package openobserve

import (
	"context"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type ShutdownFunc func(ctx context.Context) error

// Init installs a batching tracer provider. Without an endpoint tracing stays on the
// global no-op provider and the returned shutdown does nothing.
func Init(ctx context.Context, cfg config.OpenObserveConfig) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		log.Info().Msg("[OpenObserve] [Init] no endpoint configured, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	options := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	if cfg.Credential != "" {
		options = append(options, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Basic " + cfg.Credential,
		}))
	}
	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "onsocial-relayer"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("deployment.environment", cfg.Env),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	log.Info().Str("endpoint", cfg.Endpoint).Str("service", serviceName).Msg("[OpenObserve] [Init] tracing enabled")
	return provider.Shutdown, nil
}
