// Package observability configures OpenTelemetry tracing for the client and
// its tools.
package observability

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is reported when OTEL_SERVICE_NAME is unset.
	DefaultServiceName = "travelintel"

	// DefaultOTLPEndpoint is the local collector's OTLP/HTTP address.
	DefaultOTLPEndpoint = "localhost:4318"

	instrumentationName = "github.com/aixgo-dev/travelintel"
)

var (
	mu             sync.Mutex
	tracerProvider *sdktrace.TracerProvider
)

// Config holds tracing configuration
type Config struct {
	ServiceName string `yaml:"service_name"`

	// Enabled controls whether spans are exported
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp", "stdout" or "none"
	Exporter string `yaml:"exporter"`

	// OTLPEndpoint is host:port or a full URL
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	OTLPHeaders  map[string]string `yaml:"otlp_headers"`
	Insecure     bool              `yaml:"insecure"`
}

// ConfigFromEnv reads the standard OTEL_* variables:
//   - OTEL_SERVICE_NAME
//   - OTEL_TRACES_ENABLED (default false)
//   - OTEL_TRACES_EXPORTER: otlp, stdout or none
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - OTEL_EXPORTER_OTLP_HEADERS: key1=value1,key2=value2
//   - OTEL_EXPORTER_OTLP_INSECURE
func ConfigFromEnv() Config {
	return Config{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", DefaultServiceName),
		Enabled:      getEnv("OTEL_TRACES_ENABLED", "false") == "true",
		Exporter:     getEnv("OTEL_TRACES_EXPORTER", "otlp"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		OTLPHeaders:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:     getEnv("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
	}
}

// InitFromEnv initializes tracing from environment variables.
func InitFromEnv(ctx context.Context) error {
	return Init(ctx, ConfigFromEnv())
}

// Init installs a global tracer provider. A disabled config, or exporter
// "none", leaves the no-op provider in place.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled || cfg.Exporter == "none" || cfg.Exporter == "" {
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "otlp":
		exporter, err = newOTLPExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		return fmt.Errorf("unknown exporter type: %s", cfg.Exporter)
	}

	return InitWithExporter(ctx, cfg.ServiceName, exporter)
}

// InitWithExporter installs a batching tracer provider around exporter.
func InitWithExporter(ctx context.Context, serviceName string, exporter sdktrace.SpanExporter) error {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	mu.Lock()
	prev := tracerProvider
	tracerProvider = tp
	mu.Unlock()

	otel.SetTracerProvider(tp)
	if prev != nil {
		_ = prev.Shutdown(ctx)
	}
	return nil
}

// Flush exports any buffered spans without stopping the provider.
func Flush(ctx context.Context) error {
	mu.Lock()
	tp := tracerProvider
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.ForceFlush(ctx)
}

// Shutdown flushes and stops the installed provider and restores the no-op
// global provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := tracerProvider
	tracerProvider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span from the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newOTLPExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	var opts []otlptracehttp.Option
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
	}
	return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseHeaders(s string) map[string]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		headers[k] = strings.TrimSpace(v)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
