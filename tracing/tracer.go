package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// SagaInstrumentation Saga 编排器 tracer 的 instrumentation 名称.
const SagaInstrumentation = "github.com/Tsukikage7/questline/saga"

// NewTracerProvider 创建 TracerProvider 并注册为全局 provider 和 W3C 传播器.
//
// 未启用导出时仍然生成 span，日志可以关联 traceId.
// extra 追加到 provider 上，测试中可传入 tracetest.SpanRecorder.
func NewTracerProvider(cfg *Config, serviceName, serviceVersion string, extra ...sdktrace.SpanProcessor) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if serviceName == "" {
		return nil, ErrEmptyServiceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateResource, err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	}
	if cfg.Enabled {
		exp, err := otlptracehttp.New(context.Background(), cfg.exporterOptions()...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateExporter, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	for _, p := range extra {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// SagaTracer 返回 Saga 编排器使用的 tracer.
func SagaTracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(SagaInstrumentation)
}
