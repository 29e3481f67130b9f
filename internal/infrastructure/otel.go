package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "coursecheck"
	ServiceVersion = "1.0.0"
	MeterName      = "coursecheck"
)

// OTelProviders holds the OpenTelemetry providers set up at startup.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
}

// RunMetrics bundles the instruments recorded during validation runs.
type RunMetrics struct {
	RowsValidated metric.Int64Counter
	ErrorsByKind  metric.Int64Counter
	URLProbes     metric.Int64Counter
	URLCacheHits  metric.Int64Counter
	RunsCompleted metric.Int64Counter
}

// InitializeOTel sets up a tracer provider and a Prometheus-backed meter
// provider. The returned PrometheusHTTP handler serves /metrics.
func InitializeOTel(logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)
	otel.SetMeterProvider(meterProvider)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	logger.Info("OpenTelemetry initialized",
		slog.String("service", ServiceName),
		slog.String("version", ServiceVersion))

	return &OTelProviders{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Tracer:         tracerProvider.Tracer(MeterName),
		Meter:          meterProvider.Meter(MeterName),
		PrometheusHTTP: promhttp.Handler(),
	}, nil
}

// NewRunMetrics creates the validation run instruments on the given meter.
func NewRunMetrics(meter metric.Meter) (*RunMetrics, error) {
	rows, err := meter.Int64Counter("coursecheck.rows_validated",
		metric.WithDescription("Rows processed by the synchronous validation pass"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("coursecheck.validation_errors",
		metric.WithDescription("Validation errors raised, partitioned by kind"))
	if err != nil {
		return nil, err
	}
	probes, err := meter.Int64Counter("coursecheck.url_probes",
		metric.WithDescription("Network reachability probes issued"))
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64Counter("coursecheck.url_cache_hits",
		metric.WithDescription("Reachability lookups answered from the per-run cache"))
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("coursecheck.runs_completed",
		metric.WithDescription("Validation runs reaching a terminal state, partitioned by status"))
	if err != nil {
		return nil, err
	}
	return &RunMetrics{
		RowsValidated: rows,
		ErrorsByKind:  errs,
		URLProbes:     probes,
		URLCacheHits:  hits,
		RunsCompleted: runs,
	}, nil
}

// RecordError increments the error counter for one kind.
func (m *RunMetrics) RecordError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ErrorsByKind.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRunCompleted increments the completed-runs counter for one status.
func (m *RunMetrics) RecordRunCompleted(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.RunsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
