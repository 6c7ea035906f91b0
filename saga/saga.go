// Package saga 提供进程内的 Saga 编排.
//
// 编排器按注册顺序依次执行步骤，必需步骤失败时按完成顺序的逆序补偿已完成的步骤.
//
// 基本用法:
//
//	type OrderContext struct {
//	    *saga.BaseContext
//	    OrderID string
//	}
//
//	orch := saga.New[*OrderContext]("create-order").
//	    AddStep(reserveInventory).
//	    Step("charge-payment", chargePayment, refundPayment).
//	    Options(saga.WithLogger(log), saga.WithPublisher(pub)).
//	    Build()
//
//	sc := &OrderContext{BaseContext: saga.NewBaseContext("CREATE_ORDER", userID), OrderID: "O-1"}
//	result, err := orch.Execute(ctx, sc)
//	if err != nil {
//	    // 上下文为空或已经执行过
//	}
//	if !result.IsSuccess() && !result.IsCompensated() {
//	    // 补偿未全部成功，需要人工介入
//	}
//
// 补偿数据:
//
//	sc.PutCompensationData("reservation_id", "RES-123")
//	id, ok := saga.CompensationValue[string](sc, "reservation_id")
package saga

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/questline/logger"
)

// Builder 编排器构建器.
type Builder[C Context] struct {
	name  string
	steps []Step[C]
	opts  []Option
}

// New 创建编排器构建器.
func New[C Context](name string) *Builder[C] {
	return &Builder[C]{name: name}
}

// AddStep 追加步骤.
func (b *Builder[C]) AddStep(steps ...Step[C]) *Builder[C] {
	b.steps = append(b.steps, steps...)
	return b
}

// Step 使用函数追加步骤.
//
// compensate 可选，传 nil 表示不需要补偿.
func (b *Builder[C]) Step(name string, action, compensate ActionFunc[C]) *Builder[C] {
	return b.AddStep(NewStep(name, action, compensate))
}

// Options 设置配置选项.
func (b *Builder[C]) Options(opts ...Option) *Builder[C] {
	b.opts = append(b.opts, opts...)
	return b
}

// Build 构建编排器.
//
// 构建后步骤列表不可变，编排器可以被多个 goroutine 共享，每次执行使用独立的上下文.
func (b *Builder[C]) Build() *Orchestrator[C] {
	steps := make([]stepPolicy[C], len(b.steps))
	for i, s := range b.steps {
		steps[i] = resolvePolicy(s)
	}
	return &Orchestrator[C]{
		name:  b.name,
		steps: steps,
		opts:  applyOptions(b.opts),
	}
}

// Orchestrator Saga 编排器.
type Orchestrator[C Context] struct {
	name  string
	steps []stepPolicy[C]
	opts  *options
}

// Name 返回编排器名称.
func (o *Orchestrator[C]) Name() string { return o.name }

// Steps 按注册顺序返回步骤名.
func (o *Orchestrator[C]) Steps() []string {
	names := make([]string, len(o.steps))
	for i, p := range o.steps {
		names[i] = p.step.Name()
	}
	return names
}

// completedStep 参与补偿的已完成步骤.
type completedStep[C Context] struct {
	policy  stepPolicy[C]
	skipped bool
}

// Execute 执行 Saga.
//
// 步骤失败通过 Result 返回，error 只在上下文为空或状态不是 STARTED 时返回.
// 重试等待不受 ctx 取消影响，需要超时的调用方应自行在外层控制.
func (o *Orchestrator[C]) Execute(ctx context.Context, sc C) (*Result[C], error) {
	base, err := baseOf(sc)
	if err != nil {
		return nil, err
	}
	if err := base.MarkProcessing(); err != nil {
		return nil, err
	}

	ctx, span := o.opts.tracer.Start(ctx, "saga "+base.Type(), trace.WithAttributes(
		attribute.String("saga.id", base.ID()),
		attribute.String("saga.type", base.Type()),
		attribute.String("saga.name", o.name),
	))
	defer span.End()

	ctx = logger.ContextWithFields(ctx, logger.SagaID(base.ID()), logger.SagaType(base.Type()))
	log := o.opts.logger.WithContext(ctx)
	o.save(ctx, log, base)

	var completed []completedStep[C]
	for _, p := range o.steps {
		name := p.step.Name()

		run, perr := o.shouldExecute(ctx, p, sc)
		if perr == nil && !run {
			r := Skipped("前置条件不满足")
			base.RecordStepResult(name, r)
			base.log.append(LogEntry{Kind: StepSkipped, SagaID: base.ID(), SagaType: base.Type(), Step: name})
			o.recordStep(base, name, r, 0, 0)
			o.stepEnded(name, r)
			completed = append(completed, completedStep[C]{policy: p, skipped: true})

			log.Debug("[Saga] 跳过步骤", logger.Step(name))
			continue
		}

		var result StepResult
		if perr != nil {
			result = FailureFromError(perr)
			base.log.append(LogEntry{Kind: StepFailed, SagaID: base.ID(), SagaType: base.Type(), Step: name, Err: perr})
			o.recordStep(base, name, result, 0, 0)
			o.stepEnded(name, result)
		} else {
			result = o.runStep(ctx, log, base, p, sc)
		}
		base.RecordStepResult(name, result)

		if result.IsSuccess() {
			completed = append(completed, completedStep[C]{policy: p})
			continue
		}

		if !p.mandatory {
			log.Warn("[Saga] 可选步骤失败，继续执行",
				logger.Step(name),
				logger.String("message", result.Message()),
				logger.Err(result.cause()),
			)
			continue
		}

		return o.abort(ctx, log, span, sc, base, name, result, completed)
	}

	if err := base.Complete(); err != nil {
		return nil, err
	}
	o.save(ctx, log, base)
	o.recordSaga(base)

	log.Info("[Saga] 执行成功", logger.Int("steps", len(o.steps)))
	span.SetStatus(codes.Ok, "")

	if o.opts.publisher != nil {
		ev := newEvent(base, "", "")
		o.publish(ctx, log, EventCompleted, func() error {
			return o.opts.publisher.SagaCompleted(ctx, ev)
		})
	}

	return &Result[C]{context: sc, success: true, message: "执行成功"}, nil
}

// abort 处理必需步骤失败：记录失败、补偿并返回失败结果.
func (o *Orchestrator[C]) abort(
	ctx context.Context,
	log logger.Logger,
	span trace.Span,
	sc C,
	base *BaseContext,
	failedStep string,
	result StepResult,
	completed []completedStep[C],
) (*Result[C], error) {
	if err := base.Fail(result.Message(), result.Err()); err != nil {
		return nil, err
	}

	message := result.Message()
	if !result.HasMessage() {
		message = fmt.Sprintf("步骤 %s 执行失败", failedStep)
	}

	log.Error("[Saga] 必需步骤失败，开始补偿",
		logger.Step(failedStep),
		logger.String("message", result.Message()),
		logger.Int("completed_steps", len(completed)),
		logger.Err(result.cause()),
	)
	span.RecordError(result.cause())
	span.SetStatus(codes.Error, message)

	if o.opts.publisher != nil && o.opts.failedEvents {
		ev := newEvent(base, message, failedStep)
		o.publish(ctx, log, EventFailed, func() error {
			return o.opts.publisher.SagaFailed(ctx, ev)
		})
	}

	compensated := o.compensate(ctx, log, sc, base, completed)
	o.save(ctx, log, base)
	o.recordSaga(base)

	if o.opts.publisher != nil {
		ev := newEvent(base, message, failedStep)
		o.publish(ctx, log, EventCompensated, func() error {
			return o.opts.publisher.SagaCompensated(ctx, ev)
		})
	}

	return &Result[C]{
		context:     sc,
		compensated: compensated,
		message:     message,
		err:         result.Err(),
		failedStep:  failedStep,
	}, nil
}

// runStep 带重试执行步骤.
func (o *Orchestrator[C]) runStep(ctx context.Context, log logger.Logger, base *BaseContext, p stepPolicy[C], sc C) StepResult {
	name := p.step.Name()

	ctx, span := o.opts.tracer.Start(ctx, "saga.step "+name)
	defer span.End()

	if o.opts.onStepStart != nil {
		o.opts.onStepStart(name)
	}
	base.log.append(LogEntry{Kind: StepStarted, SagaID: base.ID(), SagaType: base.Type(), Step: name, Attempt: 1})

	var (
		result   StepResult
		produced bool
		attempt  int
		start    = time.Now()
	)

	// 重试等待不随调用方 ctx 取消，步骤本身仍使用原始 ctx.
	_ = retry.Do(context.WithoutCancel(ctx), p.backoff(), func(context.Context) error {
		attempt++
		attemptStart := time.Now()
		r := invoke(ctx, name, sc, p.step.Execute)
		if !r.empty() {
			result, produced = r, true
		}
		if r.IsSuccess() {
			return nil
		}
		if attempt <= p.maxRetries {
			base.log.append(LogEntry{
				Kind:     StepRetrying,
				SagaID:   base.ID(),
				SagaType: base.Type(),
				Step:     name,
				Attempt:  attempt,
				Duration: time.Since(attemptStart),
				Err:      r.cause(),
			})
			log.Warn("[Saga] 步骤执行失败，等待重试",
				logger.Step(name),
				logger.Attempt(attempt),
				logger.Duration("delay", p.retryDelay),
				logger.Err(r.cause()),
			)
		}
		return retry.RetryableError(r.cause())
	})
	if !produced {
		result = FailureFromError(fmt.Errorf("%w: %d 次尝试均未返回结果", ErrMaxRetriesExceeded, attempt))
	}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("saga.step.attempts", attempt))

	if result.IsSuccess() {
		base.log.append(LogEntry{
			Kind: StepCompleted, SagaID: base.ID(), SagaType: base.Type(), Step: name, Attempt: attempt, Duration: elapsed,
		})
		log.Debug("[Saga] 步骤执行完成", logger.Step(name), logger.Attempt(attempt), logger.Duration("duration", elapsed))
	} else {
		base.log.append(LogEntry{
			Kind: StepFailed, SagaID: base.ID(), SagaType: base.Type(), Step: name, Attempt: attempt, Duration: elapsed, Err: result.cause(),
		})
		span.RecordError(result.cause())
		span.SetStatus(codes.Error, result.Message())
	}

	o.recordStep(base, name, result, attempt, elapsed)
	o.stepEnded(name, result)
	return result
}

func (o *Orchestrator[C]) stepEnded(name string, r StepResult) {
	if o.opts.onStepEnd != nil {
		o.opts.onStepEnd(name, r)
	}
}

// compensate 逆序补偿已完成的步骤，每个步骤只调用一次，返回是否全部成功.
func (o *Orchestrator[C]) compensate(
	ctx context.Context,
	log logger.Logger,
	sc C,
	base *BaseContext,
	completed []completedStep[C],
) bool {
	if err := base.StartCompensation(); err != nil {
		log.Error("[Saga] 无法进入补偿状态", logger.Err(err))
		return false
	}

	allOK := true
	for i := len(completed) - 1; i >= 0; i-- {
		c := completed[i]
		if c.skipped {
			continue
		}
		name := c.policy.step.Name()

		stepCtx, span := o.opts.tracer.Start(ctx, "saga.compensate "+name)
		base.log.append(LogEntry{Kind: CompensationStarted, SagaID: base.ID(), SagaType: base.Type(), Step: name})

		start := time.Now()
		r := invoke(stepCtx, name, sc, c.policy.step.Compensate)
		elapsed := time.Since(start)

		if o.opts.metrics != nil {
			o.opts.metrics.RecordCompensation(base.Type(), name, r.IsSuccess(), elapsed)
		}

		if r.IsSuccess() {
			base.log.append(LogEntry{
				Kind: CompensationCompleted, SagaID: base.ID(), SagaType: base.Type(), Step: name, Duration: elapsed,
			})
			log.Debug("[Saga] 步骤已补偿", logger.Step(name), logger.Duration("duration", elapsed))
		} else {
			allOK = false
			base.log.append(LogEntry{
				Kind: CompensationFailed, SagaID: base.ID(), SagaType: base.Type(), Step: name, Duration: elapsed, Err: r.cause(),
			})
			span.RecordError(r.cause())
			span.SetStatus(codes.Error, r.Message())
			log.Error("[Saga] 补偿执行失败",
				logger.Step(name),
				logger.String("message", r.Message()),
				logger.Err(r.cause()),
			)
		}
		span.End()
	}

	if allOK {
		if err := base.MarkCompensated(); err != nil {
			log.Error("[Saga] 更新补偿状态失败", logger.Err(err))
			return false
		}
		log.Info("[Saga] 补偿完成")
		return true
	}

	if err := base.MarkCompensationFailed(); err != nil {
		log.Error("[Saga] 更新补偿状态失败", logger.Err(err))
	}
	log.Error("[Saga] 补偿未全部成功，需要人工介入",
		logger.String("failure_reason", base.FailureReason()),
	)
	return false
}

// shouldExecute 评估前置条件，panic 转换为错误.
func (o *Orchestrator[C]) shouldExecute(ctx context.Context, p stepPolicy[C], sc C) (run bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Step: p.step.Name(), Value: v}
		}
	}()
	return p.shouldExecute(ctx, sc), nil
}

// publish 发布事件，错误和 panic 只记录日志.
func (o *Orchestrator[C]) publish(ctx context.Context, log logger.Logger, name string, fn func() error) {
	defer func() {
		if v := recover(); v != nil {
			log.Warn("[Saga] 事件发布 panic", logger.String("event", name), logger.Any("panic", v))
		}
	}()
	if err := fn(); err != nil {
		log.Warn("[Saga] 事件发布失败", logger.String("event", name), logger.Err(err))
	}
}

// save 保存审计记录，失败只记录日志.
func (o *Orchestrator[C]) save(ctx context.Context, log logger.Logger, base *BaseContext) {
	if err := o.opts.store.Save(ctx, base.Snapshot()); err != nil {
		log.Warn("[Saga] 保存审计记录失败",
			logger.String("status", base.Status().String()),
			logger.Err(err),
		)
	}
}

func (o *Orchestrator[C]) recordStep(base *BaseContext, name string, r StepResult, attempts int, d time.Duration) {
	if o.opts.metrics == nil {
		return
	}
	outcome := OutcomeFailure
	switch {
	case r.IsSkipped():
		outcome = OutcomeSkipped
	case r.IsSuccess():
		outcome = OutcomeSuccess
	}
	o.opts.metrics.RecordStep(base.Type(), name, outcome, attempts, d)
}

func (o *Orchestrator[C]) recordSaga(base *BaseContext) {
	if o.opts.metrics == nil {
		return
	}
	o.opts.metrics.RecordSaga(base.Type(), base.Status(), time.Since(base.StartedAt()))
}

// invoke 调用步骤方法，panic 转换为失败结果.
func invoke[C Context](ctx context.Context, name string, sc C, fn func(context.Context, C) StepResult) (r StepResult) {
	defer func() {
		if v := recover(); v != nil {
			r = FailureFromError(&PanicError{Step: name, Value: v})
		}
	}()
	return fn(ctx, sc)
}

// backoff 返回步骤的重试策略.
func (p stepPolicy[C]) backoff() retry.Backoff {
	var b retry.Backoff
	if p.retryDelay > 0 {
		b = retry.NewConstant(p.retryDelay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.WithMaxRetries(uint64(p.maxRetries), b)
}

func baseOf[C Context](sc C) (*BaseContext, error) {
	v := reflect.ValueOf(sc)
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, ErrNilContext
	}
	// 未通过 NewBaseContext 创建的上下文没有状态机.
	base := sc.Base()
	if base == nil || base.fsm == nil {
		return nil, ErrNilContext
	}
	return base, nil
}
