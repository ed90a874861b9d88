package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(InfoLevel, buf)

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)

	assert.NoError(t, err)
	assert.Nil(t, providers)
	assert.Contains(t, buf.String(), "OpenTelemetry is disabled")
}

// OTLP exporters connect lazily, so an unreachable collector does not fail startup
func TestInitOTel_UnreachableEndpoint(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "medora-test",
		ServiceVersion: "test",
		Insecure:       true,
		SampleRatio:    0.5,
	}, logger)

	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)

	_ = ShutdownOTel(context.Background(), providers, logger)
}

func TestShutdownOTel(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	t.Run("nil providers", func(t *testing.T) {
		assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	})

	t.Run("tracer only", func(t *testing.T) {
		providers := &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}
		assert.NoError(t, ShutdownOTel(context.Background(), providers, logger))
	})
}

func TestWithTraceContext(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		assert.Same(t, logger, WithTraceContext(context.Background(), logger))
	})

	t.Run("active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		ctx, span := tp.Tracer("test").Start(context.Background(), "resolve")
		defer span.End()

		buf := &bytes.Buffer{}
		WithTraceContext(ctx, NewLogger(InfoLevel, buf)).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}
