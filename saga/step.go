package saga

import (
	"context"
	"time"
)

// DefaultRetryDelay 默认重试间隔.
const DefaultRetryDelay = time.Second

// Step Saga 步骤.
//
// Execute 对预期内的业务失败应返回失败结果而不是 panic，
// 意外的 panic 会被编排器捕获并转换为失败结果.
// Compensate 可能在正向操作只部分生效时被调用，需要能够安全地重复执行.
type Step[C Context] interface {
	Name() string
	Execute(ctx context.Context, sc C) StepResult
	Compensate(ctx context.Context, sc C) StepResult
}

// Conditional 带前置条件的步骤，未实现时总是执行.
type Conditional[C Context] interface {
	ShouldExecute(ctx context.Context, sc C) bool
}

// Optional 可选步骤，未实现时视为必需.
type Optional interface {
	IsMandatory() bool
}

// Retryable 可重试的步骤，未实现时不重试.
//
// MaxRetries 为重试次数，总尝试次数为 MaxRetries()+1.
type Retryable interface {
	MaxRetries() int
	RetryDelay() time.Duration
}

// ActionFunc 步骤正向操作或补偿操作.
type ActionFunc[C Context] func(ctx context.Context, sc C) StepResult

// FuncStep 由函数构造的步骤.
type FuncStep[C Context] struct {
	name       string
	action     ActionFunc[C]
	compensate ActionFunc[C]
	when       func(ctx context.Context, sc C) bool
	optional   bool
	retries    int
	delay      time.Duration
}

// NewStep 创建函数步骤.
//
// compensate 可以为 nil，此时补偿视为成功.
func NewStep[C Context](name string, action, compensate ActionFunc[C]) *FuncStep[C] {
	return &FuncStep[C]{
		name:       name,
		action:     action,
		compensate: compensate,
		delay:      DefaultRetryDelay,
	}
}

// When 设置前置条件.
func (s *FuncStep[C]) When(pred func(ctx context.Context, sc C) bool) *FuncStep[C] {
	s.when = pred
	return s
}

// NonMandatory 标记为可选步骤，失败不触发补偿.
func (s *FuncStep[C]) NonMandatory() *FuncStep[C] {
	s.optional = true
	return s
}

// WithRetry 设置重试次数和间隔.
func (s *FuncStep[C]) WithRetry(maxRetries int, delay time.Duration) *FuncStep[C] {
	s.retries = maxRetries
	s.delay = delay
	return s
}

func (s *FuncStep[C]) Name() string { return s.name }

func (s *FuncStep[C]) Execute(ctx context.Context, sc C) StepResult {
	return s.action(ctx, sc)
}

func (s *FuncStep[C]) Compensate(ctx context.Context, sc C) StepResult {
	if s.compensate == nil {
		return Success("无需补偿")
	}
	return s.compensate(ctx, sc)
}

func (s *FuncStep[C]) ShouldExecute(ctx context.Context, sc C) bool {
	return s.when == nil || s.when(ctx, sc)
}

func (s *FuncStep[C]) IsMandatory() bool { return !s.optional }

func (s *FuncStep[C]) MaxRetries() int { return s.retries }

func (s *FuncStep[C]) RetryDelay() time.Duration { return s.delay }

// stepPolicy 步骤的可选能力，缺省时使用默认值.
type stepPolicy[C Context] struct {
	step       Step[C]
	mandatory  bool
	maxRetries int
	retryDelay time.Duration
}

func resolvePolicy[C Context](step Step[C]) stepPolicy[C] {
	p := stepPolicy[C]{
		step:       step,
		mandatory:  true,
		retryDelay: DefaultRetryDelay,
	}
	if o, ok := step.(Optional); ok {
		p.mandatory = o.IsMandatory()
	}
	if r, ok := step.(Retryable); ok {
		p.maxRetries = max(r.MaxRetries(), 0)
		p.retryDelay = r.RetryDelay()
	}
	return p
}

func (p stepPolicy[C]) shouldExecute(ctx context.Context, sc C) bool {
	if c, ok := p.step.(Conditional[C]); ok {
		return c.ShouldExecute(ctx, sc)
	}
	return true
}
