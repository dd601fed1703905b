package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"

// Config はトレースの設定
type Config struct {
	ServiceName string
	Exporter    string    // "none", "stdout", "zipkin"
	Endpoint    string    // zipkin のエンドポイント
	SampleRate  float64   // 0.0〜1.0
	Writer      io.Writer // stdout エクスポータの出力先（nil で os.Stdout）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		ServiceName: "taskpool",
		Exporter:    "none",
		SampleRate:  1.0,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample rate must be between 0.0 and 1.0")
	}
	switch c.Exporter {
	case "none", "stdout", "zipkin":
		return nil
	default:
		return fmt.Errorf("unsupported exporter: %s", c.Exporter)
	}
}

// ShutdownFunc はエクスポータをフラッシュして停止する
type ShutdownFunc func(ctx context.Context) error

// Setup は設定に従って Tracer を作成する
// "none" の場合は何も記録しない Tracer を返す
func Setup(ctx context.Context, config Config) (trace.Tracer, ShutdownFunc, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid tracing config: %w", err)
	}

	if config.Exporter == "none" {
		return noop.NewTracerProvider().Tracer(config.ServiceName), func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(config)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", config.ServiceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	)
	return tp.Tracer(config.ServiceName), tp.Shutdown, nil
}

// newExporter はエクスポータを作成する
func newExporter(config Config) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case "stdout":
		w := config.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	case "zipkin":
		endpoint := config.Endpoint
		if endpoint == "" {
			endpoint = defaultZipkinEndpoint
		}
		exporter, err := zipkin.New(endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create Zipkin exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", config.Exporter)
	}
}
