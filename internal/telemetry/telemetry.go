package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
// A nil or disabled *Telemetry is valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED metrics for the local bridge API
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Workflow metrics
	submissionsTotal    metric.Int64Counter
	submissionDuration  metric.Float64Histogram
	staleResponsesTotal metric.Int64Counter
	retrievalsTotal     metric.Int64Counter
	retrievalsActive    metric.Int64UpDownCounter
	retrievalDuration   metric.Float64Histogram
	retrievedBytesTotal metric.Int64Counter
	notificationsTotal  metric.Int64Counter

	// Process health
	memoryUsage    metric.Int64Gauge
	goroutineCount metric.Int64Gauge
	systemUptime   metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint enables a gRPC push exporter next to the Prometheus pull endpoint.
	OTLPEndpoint   string
	ExportInterval time.Duration
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(interval)),
		))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider()

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:          meterProvider.Meter(cfg.ServiceName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := otelruntime.Start(otelruntime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer, or the global one when telemetry is off.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("socify")
	}

	return t.tracer
}

// RecordHTTPRequest records bridge API request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

func (t *Telemetry) IncrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, 1)
	}
}

func (t *Telemetry) DecrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, -1)
	}
}

// RecordSubmission records how a submission ended: success, backend_error, transport_error or rejected.
func (t *Telemetry) RecordSubmission(ctx context.Context, outcome string, duration time.Duration) {
	if t == nil || t.submissionsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	t.submissionsTotal.Add(ctx, 1, attrs)

	if duration > 0 {
		t.submissionDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordStaleResponse counts responses dropped because a newer submission superseded them.
func (t *Telemetry) RecordStaleResponse(ctx context.Context) {
	if t != nil && t.staleResponsesTotal != nil {
		t.staleResponsesTotal.Add(ctx, 1)
	}
}

// RecordRetrieval records one file retrieval attempt.
func (t *Telemetry) RecordRetrieval(ctx context.Context, status string, bytes int64, duration time.Duration) {
	if t == nil || t.retrievalsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.retrievalsTotal.Add(ctx, 1, attrs)
	t.retrievalDuration.Record(ctx, duration.Seconds(), attrs)

	if bytes > 0 {
		t.retrievedBytesTotal.Add(ctx, bytes)
	}
}

func (t *Telemetry) IncrementActiveRetrievals(ctx context.Context) {
	if t != nil && t.retrievalsActive != nil {
		t.retrievalsActive.Add(ctx, 1)
	}
}

func (t *Telemetry) DecrementActiveRetrievals(ctx context.Context) {
	if t != nil && t.retrievalsActive != nil {
		t.retrievalsActive.Add(ctx, -1)
	}
}

// RecordNotification records a webhook notification attempt.
func (t *Telemetry) RecordNotification(ctx context.Context, status string) {
	if t != nil && t.notificationsTotal != nil {
		t.notificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}

	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return t.meterProvider.Shutdown(ctx)
}

func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeWorkflowMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of bridge HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Bridge HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of bridge HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeWorkflowMetrics() error {
	var err error

	t.submissionsTotal, err = t.meter.Int64Counter(
		"submissions_total",
		metric.WithDescription("Total number of content URL submissions by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create submissions_total counter: %w", err)
	}

	t.submissionDuration, err = t.meter.Float64Histogram(
		"submission_duration_seconds",
		metric.WithDescription("Extraction request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create submission_duration histogram: %w", err)
	}

	t.staleResponsesTotal, err = t.meter.Int64Counter(
		"stale_responses_total",
		metric.WithDescription("Extraction responses discarded because a newer submission was made"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stale_responses_total counter: %w", err)
	}

	t.retrievalsTotal, err = t.meter.Int64Counter(
		"retrievals_total",
		metric.WithDescription("Total number of file retrievals"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retrievals_total counter: %w", err)
	}

	t.retrievalsActive, err = t.meter.Int64UpDownCounter(
		"retrievals_active",
		metric.WithDescription("Number of file retrievals in progress"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retrievals_active counter: %w", err)
	}

	t.retrievalDuration, err = t.meter.Float64Histogram(
		"retrieval_duration_seconds",
		metric.WithDescription("File retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retrieval_duration histogram: %w", err)
	}

	t.retrievedBytesTotal, err = t.meter.Int64Counter(
		"retrieved_bytes_total",
		metric.WithDescription("Total bytes saved to the target directory"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retrieved_bytes_total counter: %w", err)
	}

	t.notificationsTotal, err = t.meter.Int64Counter(
		"notifications_total",
		metric.WithDescription("Total number of webhook notifications"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notifications_total counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.memoryUsage, err = t.meter.Int64Gauge(
		"memory_usage_bytes",
		metric.WithDescription("Memory usage in bytes"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory_usage gauge: %w", err)
	}

	t.goroutineCount, err = t.meter.Int64Gauge(
		"goroutine_count",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create goroutine_count gauge: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics collects process-level metrics periodically.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.updateSystemMetrics(ctx, startTime)
		}
	}
}

func (t *Telemetry) updateSystemMetrics(ctx context.Context, startTime time.Time) {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	t.memoryUsage.Record(ctx, int64(m.Alloc))
	t.goroutineCount.Record(ctx, int64(runtime.NumGoroutine()))
	t.systemUptime.Record(ctx, time.Since(startTime).Seconds())
}
