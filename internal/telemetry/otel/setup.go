// Package otel wires OpenTelemetry for the auth service: OTLP trace, metric,
// and log export, plus the adapter that turns audit events into log records.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// metricInterval is how often the periodic reader pushes metrics.
const metricInterval = 10 * time.Second

// Config selects the OTLP collector and identifies this service in exported
// telemetry. An empty Endpoint disables export entirely.
type Config struct {
	// Endpoint is the OTLP gRPC collector, as a URL or bare host:port.
	Endpoint string
	// ServiceName becomes the service.name resource attribute.
	ServiceName string
	// Environment, when set, becomes deployment.environment.name (APP_ENV).
	Environment string
	// Insecure forces plaintext export even for https endpoints.
	Insecure bool
}

// Providers holds the three signal providers. Zero shutdown hooks are
// registered when export is disabled, so Shutdown is always safe to call.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider

	shutdownFns []func(context.Context) error
}

// NewProviders builds trace, metric, and log providers exporting via OTLP
// gRPC per cfg. With no endpoint the providers are inert, so callers can
// wire telemetry unconditionally and let config decide.
func NewProviders(ctx context.Context, cfg Config) (*Providers, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
		}, nil
	}

	target, plaintext, err := grpcTarget(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	insecure := plaintext || cfg.Insecure

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	p := &Providers{}
	if err := p.initTraces(ctx, target, insecure, res); err != nil {
		return nil, err
	}
	if err := p.initMetrics(ctx, target, insecure, res); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	if err := p.initLogs(ctx, target, insecure, res); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	return p, nil
}

// grpcTarget reduces an endpoint to the host:port the OTLP gRPC exporters
// dial; any URL path is dropped. The scheme decides TLS: only https keeps it.
// A bare host:port is accepted as plaintext.
func grpcTarget(endpoint string) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("otlp endpoint %q: no usable host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(cfg.Environment))
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

func (p *Providers) initTraces(ctx context.Context, target string, insecure bool, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	p.TracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	p.shutdownFns = append(p.shutdownFns, p.TracerProvider.Shutdown)
	return nil
}

func (p *Providers) initMetrics(ctx context.Context, target string, insecure bool, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("metric exporter: %w", err)
	}
	p.MeterProvider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(metricInterval))),
	)
	p.shutdownFns = append(p.shutdownFns, p.MeterProvider.Shutdown)
	return nil
}

func (p *Providers) initLogs(ctx context.Context, target string, insecure bool, res *resource.Resource) error {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("log exporter: %w", err)
	}
	p.LoggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)
	p.shutdownFns = append(p.shutdownFns, p.LoggerProvider.Shutdown)
	return nil
}

// Shutdown flushes and stops the providers in reverse creation order,
// returning the first error after trying them all.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(p.shutdownFns) - 1; i >= 0; i-- {
		if err := p.shutdownFns[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetGlobal sets the global TracerProvider and MeterProvider so
// instrumentation such as otelgrpc picks them up. The LoggerProvider is not
// made global; the audit emitter takes it explicitly.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
