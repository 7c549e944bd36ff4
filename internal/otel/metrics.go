// Package otel provides OpenTelemetry metrics and tracing integration
// for lepd.
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "lepd",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with lepd-specific
// instruments.
type Metrics struct {
	config            *MetricsConfig
	meterProvider     *sdkmetric.MeterProvider
	meter             metric.Meter
	shutdown          func(context.Context) error
	mu                sync.RWMutex
	queueDepth        atomic.Int64
	queueCallback     metric.Int64ObservableGauge
	queueCallbackReg  metric.Registration

	// Metric instruments
	captureLatency   metric.Float64Histogram
	procedureErrors  metric.Int64Counter
	activeConnections metric.Int64UpDownCounter
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	// Create exporter based on type
	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	// Create resource with service information
	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	// Create meter provider
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	// Register metric instruments
	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	// Add custom attributes
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	// Capture latency histogram (in milliseconds): how long a procedure's
	// handler ran, not counting reply encoding or the socket write.
	m.captureLatency, err = m.meter.Float64Histogram(
		"lepd.capture.latency",
		metric.WithDescription("Latency of procedure captures"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create capture latency histogram: %w", err)
	}

	// Procedure error counter with a method attribute.
	m.procedureErrors, err = m.meter.Int64Counter(
		"lepd.procedure.errors",
		metric.WithDescription("Count of procedure invocation errors by method"),
	)
	if err != nil {
		return fmt.Errorf("failed to create procedure error counter: %w", err)
	}

	// Active connections gauge (up/down counter).
	m.activeConnections, err = m.meter.Int64UpDownCounter(
		"lepd.connections.active",
		metric.WithDescription("Number of currently open connections"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active connections counter: %w", err)
	}

	// Worker queue depth observable gauge: the last value passed to
	// SetQueueDepth. It is not summed across workers.
	m.queueCallback, err = m.meter.Int64ObservableGauge(
		"lepd.worker.queue_depth",
		metric.WithDescription("Pending connection admissions of the worker that last picked one up"),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker queue depth gauge: %w", err)
	}

	m.queueCallbackReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.queueCallback, m.queueDepth.Load())
			return nil
		},
		m.queueCallback,
	)
	if err != nil {
		return fmt.Errorf("failed to register worker queue depth callback: %w", err)
	}

	return nil
}

// RecordCaptureLatency records how long a procedure's capture took.
func (m *Metrics) RecordCaptureLatency(ctx context.Context, method string, latencyMs float64, success bool) {
	if m.captureLatency == nil {
		return
	}

	m.captureLatency.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", success),
	))
}

// RecordProcedureError records a failed procedure invocation.
func (m *Metrics) RecordProcedureError(ctx context.Context, method string) {
	if m.procedureErrors == nil {
		return
	}

	m.procedureErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// IncrementConnections increments the active connections counter.
func (m *Metrics) IncrementConnections(ctx context.Context) {
	if m.activeConnections == nil {
		return
	}

	m.activeConnections.Add(ctx, 1)
}

// DecrementConnections decrements the active connections counter.
func (m *Metrics) DecrementConnections(ctx context.Context) {
	if m.activeConnections == nil {
		return
	}

	m.activeConnections.Add(ctx, -1)
}

// SetQueueDepth sets the pending-admission count read by the worker
// queue depth gauge's callback. Each worker stores its own queue length
// here when it picks up a connection, so the gauge shows the most
// recent single worker's value, not a total across workers.
func (m *Metrics) SetQueueDepth(depth int64) {
	m.queueDepth.Store(depth)
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unregister callback if registered
	if m.queueCallbackReg != nil {
		if err := m.queueCallbackReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister worker queue depth callback: %w", err)
		}
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		return NoopMetrics()
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
