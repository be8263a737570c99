// Package observability wires OpenTelemetry export for the service:
// OTLP gRPC traces and metrics plus a TrackOperation helper that records
// rate, errors, and duration around compliance and diagnosis operations.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "forge-core"

// Config controls telemetry export. Disabled providers still hand out
// working tracers and meters; the instruments just go nowhere.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig keeps telemetry off until an endpoint is configured.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "forge-core",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider owns the process-wide trace and metric pipelines.
type Provider struct {
	cfg    *Config
	traces *sdktrace.TracerProvider
	meters *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger

	operations metric.Int64Counter
	errors     metric.Int64Counter
	duration   metric.Float64Histogram
	active     metric.Int64UpDownCounter
}

// New builds the provider and installs it as the global OTel provider.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{
		cfg:    cfg,
		logger: slog.Default().With("component", "observability"),
	}
	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx, p.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	p.traces = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
	)
	otel.SetTracerProvider(p.traces)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	metricExp, err := otlpmetricgrpc.New(ctx, p.metricOptions()...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	p.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meters)

	p.tracer = otel.Tracer(scopeName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter(scopeName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if err := p.buildInstruments(); err != nil {
		return nil, fmt.Errorf("telemetry instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"endpoint", cfg.OTLPEndpoint,
	)
	return p, nil
}

func (p *Provider) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.cfg.OTLPEndpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func (p *Provider) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.cfg.OTLPEndpoint)}
	if p.cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func (p *Provider) buildInstruments() error {
	var err error
	if p.operations, err = p.meter.Int64Counter("forge.operations.total",
		metric.WithDescription("Operations processed"),
		metric.WithUnit("{operation}")); err != nil {
		return err
	}
	if p.errors, err = p.meter.Int64Counter("forge.errors.total",
		metric.WithDescription("Operation errors"),
		metric.WithUnit("{error}")); err != nil {
		return err
	}
	if p.duration, err = p.meter.Float64Histogram("forge.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return err
	}
	p.active, err = p.meter.Int64UpDownCounter("forge.operations.active",
		metric.WithDescription("Currently active operations"),
		metric.WithUnit("{operation}"))
	return err
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.traces != nil {
		if err := p.traces.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "meter provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the service tracer, falling back to the global one when
// the provider is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(scopeName)
	}
	return p.tracer
}

// Meter returns the service meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(scopeName)
	}
	return p.meter
}

// TrackOperation opens a span and bumps the RED instruments for one
// operation. The returned func records the outcome; call it exactly once.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	opts := metric.WithAttributes(attrs...)
	if p.active != nil {
		p.active.Add(ctx, 1, opts)
	}
	if p.operations != nil {
		p.operations.Add(ctx, 1, opts)
	}
	return ctx, func(err error) {
		if p.active != nil {
			p.active.Add(ctx, -1, opts)
		}
		if p.duration != nil {
			p.duration.Record(ctx, time.Since(start).Seconds(), opts)
		}
		if err != nil {
			span.RecordError(err)
			if p.errors != nil {
				p.errors.Add(ctx, 1, metric.WithAttributes(
					append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))...))
			}
		}
		span.End()
	}
}
