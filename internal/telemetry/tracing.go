// Package telemetry configures OpenTelemetry tracing for a command run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "n8nctl"

// Tracing owns the tracer provider of a run. The zero value traces nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	out      io.Closer
}

// NewTracing exports spans as JSON to the file at path. An empty path
// disables tracing.
func NewTracing(path, version string) (*Tracing, error) {
	if path == "" {
		return &Tracing{}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	t, err := newTracing(f, version)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	t.out = f
	return t, nil
}

func newTracing(w io.Writer, version string) (*Tracing, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(provider)

	return &Tracing{provider: provider}, nil
}

// Tracer returns the tracer for the named instrumentation scope.
func (t *Tracing) Tracer(name string) trace.Tracer {
	if t.provider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return t.provider.Tracer(name)
}

// Shutdown flushes pending spans and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	var errs []error
	if t.provider != nil {
		errs = append(errs, t.provider.Shutdown(ctx))
	}
	if t.out != nil {
		errs = append(errs, t.out.Close())
	}
	return errors.Join(errs...)
}
