// Package telemetry wires OpenTelemetry tracing for pipeline stages.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	providerMu     sync.RWMutex
	globalProvider trace.TracerProvider
)

// StdoutWriter receives spans from the stdout exporter.
var StdoutWriter io.Writer = os.Stderr

// InitProvider installs the global tracer provider described by cfg and
// returns its shutdown function. A disabled config installs a noop provider.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled() {
		SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(StdoutWriter))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1.0 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)
	SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newResource(cfg Config) *resource.Resource {
	return resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
}

// SetTracerProvider replaces the provider used by this package and the otel
// global.
func SetTracerProvider(tp trace.TracerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = tp
	otel.SetTracerProvider(tp)
}

// GetTracerProvider returns the current global tracer provider
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if globalProvider != nil {
		return globalProvider
	}
	return noop.NewTracerProvider()
}
