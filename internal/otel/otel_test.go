package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("expected Enabled to be false by default")
	}
	if cfg.ServiceName != "lepd" {
		t.Errorf("expected ServiceName 'lepd', got %q", cfg.ServiceName)
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("expected ExporterType 'none', got %q", cfg.ExporterType)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
}

func TestNewTracerDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	if tracer.Enabled() {
		t.Error("expected tracer to be disabled")
	}

	spanCtx, span := tracer.StartSpan(ctx, "test-span")
	defer span.End()

	if spanCtx == nil {
		t.Error("expected non-nil context")
	}
	if span == nil {
		t.Error("expected non-nil span")
	}
}

func TestNewTracerWithNilConfig(t *testing.T) {
	ctx := context.Background()

	tracer, err := NewTracer(ctx, nil)
	if err != nil {
		t.Fatalf("NewTracer with nil config failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	if tracer.Enabled() {
		t.Error("expected tracer with nil config to be disabled")
	}
}

func TestNewTracerStdout(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Enabled:      true,
		ServiceName:  "lepd-test",
		ExporterType: ExporterStdout,
		SampleRate:   1.0,
	}

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer with stdout exporter failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	if !tracer.Enabled() {
		t.Error("expected tracer to be enabled")
	}
}

func TestStartInvocationSpan(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Enabled:      true,
		ServiceName:  "lepd-test",
		ExporterType: ExporterStdout,
		SampleRate:   1.0,
	}

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	spanCtx, span := tracer.StartInvocationSpan(ctx, InvocationSpanOptions{
		Method:   "GetProcMeminfo",
		WorkerID: "2",
		ConnID:   "w2-c1",
	})
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Error("expected a valid span context for an enabled tracer")
	}
	if got := trace.SpanFromContext(spanCtx); got != span {
		t.Error("expected the span to be installed in the returned context")
	}
}

func TestGetTraceInfo(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Enabled:      true,
		ServiceName:  "lepd-test",
		ExporterType: ExporterStdout,
		SampleRate:   1.0,
	}

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	spanCtx, span := tracer.StartSpan(ctx, "trace-info-span")
	defer span.End()

	traceID, spanID := GetTraceInfo(spanCtx)
	if traceID == "" {
		t.Error("expected non-empty trace ID")
	}
	if spanID == "" {
		t.Error("expected non-empty span ID")
	}
}

func TestGetTraceInfoNoSpan(t *testing.T) {
	traceID, spanID := GetTraceInfo(context.Background())
	if traceID != "" {
		t.Errorf("expected empty trace ID without a span, got %q", traceID)
	}
	if spanID != "" {
		t.Errorf("expected empty span ID without a span, got %q", spanID)
	}
}

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()

	if tracer.Enabled() {
		t.Error("expected noop tracer to be disabled")
	}

	ctx, span := tracer.StartSpan(context.Background(), "noop-span")
	defer span.End()

	if ctx == nil {
		t.Error("expected non-nil context from noop tracer")
	}
	if span.SpanContext().IsValid() {
		t.Error("expected an invalid (noop) span context")
	}
}

func TestGlobalTracer(t *testing.T) {
	defer SetGlobalTracer(nil)

	SetGlobalTracer(nil)
	got := GetGlobalTracer()
	if got == nil {
		t.Fatal("expected a fallback tracer when none is set")
	}
	if got.Enabled() {
		t.Error("expected the fallback tracer to be disabled")
	}

	tracer, err := NewTracer(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	SetGlobalTracer(tracer)

	if GetGlobalTracer() != tracer {
		t.Error("expected GetGlobalTracer to return the tracer just set")
	}
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Enabled:      true,
		ServiceName:  "lepd-test",
		ExporterType: ExporterStdout,
		SampleRate:   1.0,
	}

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	_, span := tracer.StartSpan(ctx, "error-span")
	defer span.End()

	// Must not panic on either the nil or non-nil paths.
	RecordError(span, errors.New("probe exploded"), "handler_error", false)
	RecordError(span, nil, "handler_error", false)
	RecordError(nil, errors.New("no span"), "handler_error", false)
}

func TestSamplerConfigurations(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		rate float64
	}{
		{"always", 1.0},
		{"never", 0.0},
		{"ratio", 0.5},
		{"above one", 2.0},
		{"below zero", -1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Enabled:      true,
				ServiceName:  "lepd-test",
				ExporterType: ExporterStdout,
				SampleRate:   tc.rate,
			}
			tracer, err := NewTracer(ctx, cfg)
			if err != nil {
				t.Fatalf("NewTracer failed for rate %f: %v", tc.rate, err)
			}
			tracer.Shutdown(ctx)
		})
	}
}

func TestTracerPropagator(t *testing.T) {
	tracer, err := NewTracer(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}

	if tracer.Propagator() == nil {
		t.Error("expected non-nil propagator")
	}
}

func TestTracerProviderAccessor(t *testing.T) {
	tracer, err := NewTracer(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}

	if tracer.TracerProvider() == nil {
		t.Error("expected non-nil tracer provider")
	}
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Enabled:      true,
		ServiceName:  "lepd-test",
		ExporterType: ExporterStdout,
		SampleRate:   1.0,
	}

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(ctx)

	spanCtx, span := tracer.StartSpan(ctx, "ctx-span")
	defer span.End()

	if got := tracer.SpanFromContext(spanCtx); got != span {
		t.Error("expected SpanFromContext to return the active span")
	}
}

func TestConfigWithAttributes(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Enabled:      true,
		ServiceName:  "lepd-test",
		ExporterType: ExporterStdout,
		SampleRate:   1.0,
		Attributes: map[string]string{
			"deployment": "test",
			"host_class": "ci",
		},
	}

	tracer, err := NewTracer(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTracer with attributes failed: %v", err)
	}
	tracer.Shutdown(ctx)
}
