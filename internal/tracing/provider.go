// Package tracing provides OpenTelemetry initialization and per-event spans.
// With propagation enabled, spans continue traces carried in event headers.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/lagmeter/internal/config"
)

const instrumentationName = "github.com/torosent/lagmeter"

// Consumer describes the event stream being monitored. Its fields become
// resource attributes so every span from one run can be grouped by stream.
type Consumer struct {
	System      string // kafka, generator or replay
	Destination string // topic or dataset path
	Group       string // consumer group, Kafka only
}

func (c Consumer) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if c.System != "" {
		attrs = append(attrs, attribute.String("messaging.system", c.System))
	}
	if c.Destination != "" {
		attrs = append(attrs, attribute.String("messaging.destination.name", c.Destination))
	}
	if c.Group != "" {
		attrs = append(attrs, attribute.String("messaging.consumer.group.name", c.Group))
	}
	return attrs
}

// ConsumerFromConfig derives the Consumer for the configured source.
func ConsumerFromConfig(cfg *config.Config) Consumer {
	c := Consumer{System: string(cfg.Source)}
	switch cfg.Source {
	case config.SourceKafka:
		c.Destination = cfg.Kafka.Topic
		c.Group = cfg.Kafka.Group
	case config.SourceReplay:
		c.Destination = cfg.Replay.Path
	default:
		c.Destination = cfg.Generator.Topic
	}
	return c
}

// Provider owns the tracer provider for one run.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
}

// Init installs a global tracer provider exporting to the configured OTLP
// endpoint. Without an endpoint it returns a provider whose tracer is a no-op.
func Init(ctx context.Context, cfg config.TracingConfig, consumer Consumer) (*Provider, error) {
	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return &Provider{}, nil
	}

	sampler, err := newSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), "lagmeter"))),
		resource.WithAttributes(consumer.attributes()...),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)

	p := &Provider{tp: tp, tracer: tp.Tracer(instrumentationName), propagate: cfg.ShouldPropagate()}
	if p.propagate {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}
	return p, nil
}

// Tracer returns the run's tracer, or a no-op tracer when tracing is off.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// ShouldPropagate returns whether upstream trace context is extracted from event headers.
func (p *Provider) ShouldPropagate() bool {
	return p != nil && p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// newSampler maps a sample rate onto a root sampler. Zero samples nothing and
// one samples everything.
func newSampler(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate == 1:
		return sdktrace.AlwaysSample(), nil
	default:
		return sdktrace.TraceIDRatioBased(rate), nil
	}
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(firstNonEmpty(cfg.Protocol, "grpc")); protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
