package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMessagingTracer_NilIsNoop(t *testing.T) {
	var tracer *messagingTracer
	ctx := context.Background()

	got, span := tracer.start(ctx, TypeKafka, &Message{Topic: "t"})
	assert.Equal(t, ctx, got)
	assert.Nil(t, span)

	finish(nil, errors.New("ignored"))
}

func TestMessagingTracer_ProducerSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tracer := newMessagingTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))

	_, span := tracer.start(context.Background(), TypeRabbitMQ, &Message{Topic: "saga.failed", Key: []byte("saga-1")})
	finish(span, errors.New("nack"))

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "rabbitmq.produce", ended[0].Name())
	assert.Equal(t, trace.SpanKindProducer, ended[0].SpanKind())
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "saga.failed", attrs["messaging.destination.name"])
	assert.Equal(t, "saga-1", attrs["messaging.message.id"])
}

func TestOutgoingHeaders(t *testing.T) {
	ctx := context.Background()

	headers := map[string]string{"custom": "value"}
	assert.Equal(t, headers, outgoingHeaders(ctx, nil, headers), "no tracer leaves headers untouched")

	spans := tracetest.NewSpanRecorder()
	tracer := &messagingTracer{
		tracer:     sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)).Tracer("test"),
		propagator: propagation.TraceContext{},
	}
	ctx, span := tracer.start(ctx, TypeKafka, &Message{Topic: "t"})
	defer span.End()

	out := outgoingHeaders(ctx, tracer, headers)
	assert.Equal(t, "value", out["custom"])
	assert.NotEmpty(t, out["traceparent"])
	assert.Len(t, headers, 1, "caller headers must not be modified")

	assert.NotNil(t, outgoingHeaders(ctx, tracer, nil))
}
