// Package observability configures tracing.
package observability

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// ServiceName identifies this process in traces.
const ServiceName = "anthill-leaderboard"

const shutdownTimeout = 5 * time.Second

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// InitTracer sets the global tracer provider. With an endpoint spans go to an
// OTLP/HTTP collector, otherwise to stdout. When disabled the no-op provider
// stays in place. A nil log discards exporter messages.
func InitTracer(enabled bool, endpoint string, log logger.Logger) (Shutdown, error) {
	return initTracer(enabled, endpoint, nil, log)
}

func initTracer(enabled bool, endpoint string, out io.Writer, log logger.Logger) (Shutdown, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	if log == nil {
		log = logger.Discard()
	}

	ctx := context.Background()
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
		log.Info(ctx, "trace exporter configured", logger.String("type", "otlphttp"), logger.String("endpoint", endpoint))
	} else {
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if out != nil {
			opts = append(opts, stdouttrace.WithWriter(out))
		}
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		log.Info(ctx, "trace exporter configured", logger.String("type", "stdout"))
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the tracer used for leaderboard operations.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}
