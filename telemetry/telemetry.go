package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"accounts-service/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const shutdownTimeout = 5 * time.Second

type exporters struct {
	traces  trace.SpanExporter
	metrics metric.Exporter
}

// Enabled reports whether any OTLP endpoint is configured.
func Enabled(cfg config.TelemetryConfig) bool {
	return cfg.OTLPEndpoint != "" || cfg.OTLPTracesEndpoint != "" || cfg.OTLPMetricsEndpoint != ""
}

// Init installs the global propagator and, when an OTLP endpoint is
// configured, trace and metric providers exporting to it. The profile cache
// hit/miss/failure counters and per-operation spans flow through these.
func Init(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !Enabled(cfg.Telemetry) {
		log.Println("OpenTelemetry disabled: OTEL_EXPORTER_OTLP_ENDPOINT is empty")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.Telemetry.ServiceName),
			semconv.ServiceVersion(cfg.Telemetry.ServiceVersion),
			attribute.String("deployment.environment", cfg.AppEnv),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var exp exporters
	switch cfg.Telemetry.OTLPProtocol {
	case "http/protobuf", "http":
		exp, err = newHTTPExporters(ctx, cfg.Telemetry)
	default:
		exp, err = newGRPCExporters(ctx, cfg.Telemetry)
	}
	if err != nil {
		return nil, err
	}

	traceProvider := trace.NewTracerProvider(
		trace.WithBatcher(exp.traces),
		trace.WithResource(res),
	)
	metricProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(
			exp.metrics,
			metric.WithInterval(cfg.Telemetry.MetricExportInterval),
		)),
	)

	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(metricProvider)
	log.Printf("OpenTelemetry enabled protocol=%s service=%s", cfg.Telemetry.OTLPProtocol, cfg.Telemetry.ServiceName)

	return func(shutdownCtx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, shutdownTimeout)
		defer cancel()
		return errors.Join(
			traceProvider.Shutdown(shutdownCtx),
			metricProvider.Shutdown(shutdownCtx),
		)
	}, nil
}

// endpoints returns the trace and metric endpoints, with the per-signal
// settings overriding the shared one.
func endpoints(cfg config.TelemetryConfig) (traces, metrics string) {
	traces, metrics = cfg.OTLPEndpoint, cfg.OTLPEndpoint
	if cfg.OTLPTracesEndpoint != "" {
		traces = cfg.OTLPTracesEndpoint
	}
	if cfg.OTLPMetricsEndpoint != "" {
		metrics = cfg.OTLPMetricsEndpoint
	}
	return traces, metrics
}

func newHTTPExporters(ctx context.Context, cfg config.TelemetryConfig) (exporters, error) {
	traceEndpoint, metricEndpoint := endpoints(cfg)
	traceOptions := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(traceEndpoint),
		otlptracehttp.WithHeaders(cfg.OTLPHeaders),
		otlptracehttp.WithTimeout(cfg.ExportTimeout),
	}
	metricOptions := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(metricEndpoint),
		otlpmetrichttp.WithHeaders(cfg.OTLPHeaders),
		otlpmetrichttp.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.OTLPInsecure {
		traceOptions = append(traceOptions, otlptracehttp.WithInsecure())
		metricOptions = append(metricOptions, otlpmetrichttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOptions...)
	if err != nil {
		return exporters{}, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx, metricOptions...)
	if err != nil {
		return exporters{}, fmt.Errorf("create metric exporter: %w", err)
	}
	return exporters{traces: traceExporter, metrics: metricExporter}, nil
}

func newGRPCExporters(ctx context.Context, cfg config.TelemetryConfig) (exporters, error) {
	traceEndpoint, metricEndpoint := endpoints(cfg)
	traceOptions := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(traceEndpoint),
		otlptracegrpc.WithHeaders(cfg.OTLPHeaders),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	metricOptions := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(metricEndpoint),
		otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders),
		otlpmetricgrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.OTLPInsecure {
		traceOptions = append(traceOptions, otlptracegrpc.WithInsecure())
		metricOptions = append(metricOptions, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOptions...)
	if err != nil {
		return exporters{}, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOptions...)
	if err != nil {
		return exporters{}, fmt.Errorf("create metric exporter: %w", err)
	}
	return exporters{traces: traceExporter, metrics: metricExporter}, nil
}
