package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Tsukikage7/questline/saga"
)

func TestNewTracerProvider_NilConfig(t *testing.T) {
	tp, err := NewTracerProvider(nil, "test-service", "1.0.0")

	assert.Nil(t, tp)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestNewTracerProvider_EmptyServiceName(t *testing.T) {
	tp, err := NewTracerProvider(&Config{}, "", "1.0.0")

	assert.Nil(t, tp)
	assert.ErrorIs(t, err, ErrEmptyServiceName)
}

func TestNewTracerProvider_EmptyEndpoint(t *testing.T) {
	tp, err := NewTracerProvider(&Config{Enabled: true}, "test-service", "1.0.0")

	assert.Nil(t, tp)
	assert.ErrorIs(t, err, ErrEmptyEndpoint)
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	for _, endpoint := range []string{"localhost:4318", "http://localhost:4318", "https://collector:4318"} {
		cfg := &Config{
			Enabled:      true,
			Endpoint:     endpoint,
			SamplingRate: 1.5,
			Headers:      map[string]string{"Authorization": "Bearer token"},
		}

		tp, err := NewTracerProvider(cfg, "test-service", "1.0.0")

		require.NoError(t, err, endpoint)
		assert.NotNil(t, tp)
		_ = tp.Shutdown(context.Background())
	}
}

func TestSagaSpans(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(&Config{}, "test-service", "1.0.0", spans)
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	type ctx struct{ *saga.BaseContext }
	orch := saga.New[*ctx]("traced").
		Step("first", func(context.Context, *ctx) saga.StepResult { return saga.Success("") }, nil).
		Options(saga.WithTracer(SagaTracer(tp))).
		Build()

	_, err = orch.Execute(context.Background(), &ctx{saga.NewBaseContext("TRACED", "")})
	require.NoError(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "saga.step first", ended[0].Name())
	assert.Equal(t, "saga TRACED", ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Equal(t, SagaInstrumentation, ended[1].InstrumentationScope().Name)

	name, ok := ended[1].Resource().Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "test-service", name.AsString())
}

func TestConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want float64
	}{
		{"zero", 0, 1},
		{"negative", -0.5, 1},
		{"above one", 1.5, 1},
		{"kept", 0.25, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SamplingRate: tt.rate}
			cfg.ApplyDefaults()

			assert.Equal(t, tt.want, cfg.SamplingRate)
			assert.Equal(t, 10*time.Second, cfg.Timeout)
		})
	}
}

func TestConfig_ExporterOptions(t *testing.T) {
	plain := &Config{Endpoint: "http://localhost:4318", Timeout: time.Second}
	assert.Len(t, plain.exporterOptions(), 3)

	secure := &Config{
		Endpoint: "https://collector:4318",
		Timeout:  time.Second,
		Headers:  map[string]string{"Authorization": "Bearer token"},
	}
	assert.Len(t, secure.exporterOptions(), 3)
}

func TestNewTracerProvider_SamplesRootSpans(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(&Config{SamplingRate: 1}, "test-service", "1.0.0", spans)
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := SagaTracer(tp).Start(context.Background(), "root")
	span.End()

	assert.True(t, span.SpanContext().IsSampled())
	assert.Len(t, spans.Ended(), 1)
}
