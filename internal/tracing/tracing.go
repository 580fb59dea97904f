package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "journalscope"
	serviceVersion = "0.1.0"
)

// Config holds tracing configuration
type Config struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

// Provider wraps the OpenTelemetry tracer provider
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider creates a new tracing provider. A disabled provider hands out
// the global tracer, which is a no-op unless something else installed one.
func NewProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tracer: otel.Tracer(serviceName),
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter *otlptrace.Exporter
	if cfg.Endpoint != "" {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	providerOpts = append(providerOpts, opts...)

	tp := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(serviceName),
	}, nil
}

// Tracer returns the tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes and stops the tracer provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

// SetAttributes sets attributes on the current span
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError records err on the current span and marks it failed
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceRun creates the root span of one analysis run
func TraceRun(ctx context.Context, tracer trace.Tracer, runID, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.root", root),
		),
	)
}

// TraceClassify creates a span for routing a set of files
func TraceClassify(ctx context.Context, tracer trace.Tracer, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "classifier.classify",
		trace.WithAttributes(
			attribute.Int("file.count", files),
		),
	)
}

// TraceExtract creates a span for extracting transactions from a customer journal
func TraceExtract(ctx context.Context, tracer trace.Tracer, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "transaction.extract",
		trace.WithAttributes(
			attribute.String("file.path", path),
		),
	)
}

// TraceFlow creates a span for correlating transactions with UI events
func TraceFlow(ctx context.Context, tracer trace.Tracer, transactions, events int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flow.correlate",
		trace.WithAttributes(
			attribute.Int("transaction.count", transactions),
			attribute.Int("ui_event.count", events),
		),
	)
}

// TraceOutput creates a span for output operations
func TraceOutput(ctx context.Context, tracer trace.Tracer, outputName string, recordCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "output.send",
		trace.WithAttributes(
			attribute.String("output.name", outputName),
			attribute.Int("record.count", recordCount),
		),
	)
}
