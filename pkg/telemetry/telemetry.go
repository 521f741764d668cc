// Package telemetry wires OpenTelemetry metrics and tracing for the
// ingest and policy decision paths (spec §4.3/§4.6's "C3, C6 —
// decision/ingest counters"), trimmed from the teacher's
// pkg/observability.Provider down to a meter, a tracer, and the span/
// counter helpers this daemon's call sites actually use.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and where metrics are exported.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"
	Enabled      bool
	Insecure     bool
}

// Provider owns the meter/tracer providers and the counters ingestion and
// policy decisions increment.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	EventsAccepted  metric.Int64Counter
	EventsRejected  metric.Int64Counter
	RateLimited     metric.Int64Counter
	PolicyDecisions metric.Int64Counter
}

// noopProvider is returned when telemetry is disabled: every counter and
// the tracer are real (but unexported-provider) no-op instruments, so call
// sites never need a nil check.
func noopProvider() (*Provider, error) {
	meter := sdkmetric.NewMeterProvider().Meter("aigos-governor")
	tracer := sdktrace.NewTracerProvider().Tracer("aigos-governor")
	return newProvider(nil, nil, meter, tracer)
}

// New stands up the OTLP gRPC metric and trace exporters described by cfg,
// or a no-op provider when cfg.Enabled is false.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return noopProvider()
	}

	res, err := resource.New(ctx, resource.WithAttributes())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)

	meter := mp.Meter(cfg.ServiceName)
	tracer := tp.Tracer(cfg.ServiceName)
	return newProvider(mp, tp, meter, tracer)
}

func newProvider(mp *sdkmetric.MeterProvider, tp *sdktrace.TracerProvider, meter metric.Meter, tracer trace.Tracer) (*Provider, error) {
	accepted, err := meter.Int64Counter("aigos.ingest.events_accepted")
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("aigos.ingest.events_rejected")
	if err != nil {
		return nil, err
	}
	limited, err := meter.Int64Counter("aigos.ingest.rate_limited")
	if err != nil {
		return nil, err
	}
	decisions, err := meter.Int64Counter("aigos.policy.decisions")
	if err != nil {
		return nil, err
	}
	return &Provider{
		meterProvider:   mp,
		tracerProvider:  tp,
		meter:           meter,
		tracer:          tracer,
		EventsAccepted:  accepted,
		EventsRejected:  rejected,
		RateLimited:     limited,
		PolicyDecisions: decisions,
	}, nil
}

// StartSpan starts a span named name, returning the derived context and a
// finish func that ends the span, recording err (if non-nil) as the span's
// error status. Satisfies ingestion.Tracer so a Pipeline can wrap its
// accept path without importing OpenTelemetry types directly.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	spanCtx, span := p.tracer.Start(ctx, name)
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordAccepted increments the accepted-event counter.
func (p *Provider) RecordAccepted(ctx context.Context) {
	p.EventsAccepted.Add(ctx, 1)
}

// RecordRejected increments the rejected-event counter, tagged by reason
// code (e.g. "EVT_BAD_HASH").
func (p *Provider) RecordRejected(ctx context.Context, reason string) {
	p.EventsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRateLimited increments the rate-limit-exhaustion counter.
func (p *Provider) RecordRateLimited(ctx context.Context) {
	p.RateLimited.Add(ctx, 1)
}

// RecordPolicyDecision increments the policy-decision counter, tagged by
// the Bouncer's outcome (e.g. "allow", "deny").
func (p *Provider) RecordPolicyDecision(ctx context.Context, outcome string) {
	p.PolicyDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Shutdown flushes and stops the meter and tracer providers. Safe to call
// on a no-op provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	if p.meterProvider != nil {
		err = p.meterProvider.Shutdown(ctx)
	}
	if p.tracerProvider != nil {
		if tErr := p.tracerProvider.Shutdown(ctx); tErr != nil && err == nil {
			err = tErr
		}
	}
	return err
}
