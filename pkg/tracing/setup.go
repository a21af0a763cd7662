package tracing

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const (
	ExporterNone    = "none"
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
)

// Config selects the span exporter and sampling.
type Config struct {
	ServiceName string               `koanf:"service_name"`
	Exporter    string               `koanf:"exporter" validate:"oneof=none console otlp"`
	SampleRatio float64              `koanf:"sample_ratio" validate:"gte=0,lte=1"`
	OTLP        exporters.OTLPConfig `koanf:"otlp"`
}

// DefaultConfig disables export.
func DefaultConfig() Config {
	return Config{
		ServiceName: "fern",
		Exporter:    ExporterNone,
		SampleRatio: 1,
		OTLP:        exporters.DefaultOTLPConfig(),
	}
}

// Setup installs the global tracer provider and the package tracer. The returned
// function flushes and stops the provider.
func Setup(ctx context.Context, cfg Config, logger ectologger.Logger) (func(context.Context) error, error) {
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterConsole:
		exporter = exporters.NewConsoleExporter(logger)
	case ExporterOTLP:
		otlp, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = otlp
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(tp.Tracer(cfg.ServiceName))

	logger.WithContext(ctx).WithFields(map[string]any{
		"exporter":     cfg.Exporter,
		"sample_ratio": cfg.SampleRatio,
	}).Info("Tracing initialized")
	return tp.Shutdown, nil
}
