package saga

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Tsukikage7/questline/logger"
)

// Option 配置选项函数.
type Option func(*options)

// MetricsRecorder 指标记录器.
type MetricsRecorder interface {
	// RecordStep 记录一次步骤执行，outcome 为 success、failure 或 skipped.
	RecordStep(sagaType, step, outcome string, attempts int, d time.Duration)
	RecordCompensation(sagaType, step string, success bool, d time.Duration)
	RecordSaga(sagaType string, status Status, d time.Duration)
}

// 步骤执行结果标签.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// options 编排器配置.
type options struct {
	store        Store
	logger       logger.Logger
	publisher    EventPublisher
	failedEvents bool
	metrics      MetricsRecorder
	tracer       trace.Tracer
	onStepStart  func(stepName string)
	onStepEnd    func(stepName string, r StepResult)
}

func defaultOptions() *options {
	return &options{
		store:  NewNopStore(),
		logger: logger.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithStore 设置审计存储.
//
// 如果不设置，使用 NopStore（不保存记录）.
func WithStore(store Store) Option {
	return func(o *options) {
		if store != nil {
			o.store = store
		}
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithPublisher 设置事件发布者.
func WithPublisher(p EventPublisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithFailedEvents 在必需步骤失败时额外发布 saga.failed 事件.
//
// 默认只在完成和补偿结束时发布.
func WithFailedEvents() Option {
	return func(o *options) {
		o.failedEvents = true
	}
}

// WithMetrics 设置指标记录器.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer 设置链路追踪 tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithStepHooks 设置步骤执行钩子.
//
// onStart 只在步骤真正执行前调用. onEnd 在每个步骤的结果确定后调用，
// 包括跳过的步骤和执行条件判断 panic 的步骤，后两者不会触发 onStart.
func WithStepHooks(onStart func(stepName string), onEnd func(stepName string, r StepResult)) Option {
	return func(o *options) {
		o.onStepStart = onStart
		o.onStepEnd = onEnd
	}
}
