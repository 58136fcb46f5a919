package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/config"
)

// Providers bundles the process-wide tracer and meter providers and the
// handler serving Prometheus metrics.
type Providers struct {
	MeterProvider metric.MeterProvider

	// MetricsHandler is nil when metrics are disabled.
	MetricsHandler http.Handler

	shutdownFuncs []func(context.Context) error
}

// Init initializes OpenTelemetry providers based on configuration and
// installs them globally. Tracing is enabled only when an OTLP endpoint is
// configured; metrics only when MetricsEnabled is set. Anything disabled is
// a no-op with zero overhead.
func Init(ctx context.Context, cfg config.ObservabilityConfig, log *zap.SugaredLogger) (*Providers, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Providers{MeterProvider: noop.NewMeterProvider()}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTEL resource: %w", err)
	}

	if cfg.MetricsEnabled {
		mp, handler, err := newPrometheusMeterProvider(res)
		if err != nil {
			return nil, fmt.Errorf("failed to create meter provider: %w", err)
		}
		otel.SetMeterProvider(mp)
		p.MeterProvider = mp
		p.MetricsHandler = handler
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
		log.Infow("prometheus metrics enabled")
	}

	if cfg.OTLPEndpoint == "" {
		log.Infow("tracing disabled (observability.otlp_endpoint not set)")
		return p, nil
	}

	log.Infow("initializing OpenTelemetry tracing",
		"endpoint", cfg.OTLPEndpoint,
		"service", cfg.ServiceName,
	)
	tracerProvider, err := newTracerProvider(ctx, res, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tracerProvider)

	// W3C Trace Context propagation for distributed tracing
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, tracerProvider.Shutdown)
	return p, nil
}

// Shutdown flushes and stops every provider.
func (p *Providers) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for i, shutdown := range p.shutdownFuncs {
		if err := shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("provider %d shutdown failed: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// newResource creates an OTEL resource with service identification
// attributes. The service part must stay schemaless: resource.Default
// already carries a schema URL and Merge rejects a second one.
func newResource(cfg config.ObservabilityConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
}

// newPrometheusMeterProvider wires an OTEL meter provider to a private
// Prometheus registry that also carries Go runtime and process collectors.
func newPrometheusMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return mp, handler, nil
}

// newTracerProvider creates a TracerProvider with OTLP HTTP exporter.
func newTracerProvider(ctx context.Context, res *resource.Resource, cfg config.ObservabilityConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
