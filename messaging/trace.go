package messaging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Tsukikage7/questline/messaging"

// messagingTracer 为每次发送创建 producer span.
//
// 传播器取全局 TextMapPropagator，由 tracing.NewTracerProvider 设置.
type messagingTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newMessagingTracer(tp trace.TracerProvider) *messagingTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &messagingTracer{
		tracer:     tp.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
	}
}

// start 开始 "<system>.produce" span，tracer 为 nil 时返回原 ctx 和 nil span.
func (t *messagingTracer) start(ctx context.Context, system string, msg *Message) (context.Context, trace.Span) {
	if t == nil {
		return ctx, nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", system),
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.String("messaging.operation", "publish"),
	}
	if len(msg.Key) > 0 {
		attrs = append(attrs, attribute.String("messaging.message.id", string(msg.Key)))
	}
	return t.tracer.Start(ctx, system+".produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
}

// inject 把追踪上下文写入 headers.
func (t *messagingTracer) inject(ctx context.Context, headers map[string]string) {
	t.propagator.Inject(ctx, propagation.MapCarrier(headers))
}

// finish 结束 span，err 非空时标记失败.
func finish(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
