package api

import (
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestMain installs a real SDK tracer provider for the whole package so the
// observe middleware has a valid trace ID to mirror into X-Correlation-ID.
// It is set once before any test runs, which keeps it safe for the parallel
// tests in this package.
func TestMain(m *testing.M) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	code := m.Run()
	_ = tp.Shutdown(context.Background())
	os.Exit(code)
}
