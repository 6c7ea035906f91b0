package saga

import (
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
)

// Context 由各业务流程的上下文实现，通常通过嵌入 *BaseContext 获得.
//
//	type OrderContext struct {
//	    *saga.BaseContext
//	    OrderID string
//	}
type Context interface {
	Base() *BaseContext
}

// BaseContext 单次 Saga 运行的状态，不是并发安全的.
type BaseContext struct {
	id         string
	sagaType   string
	executorID string

	status Status
	fsm    *stateless.StateMachine

	stepResults map[string]StepResult
	stepOrder   []string
	compData    map[string]any

	startedAt     time.Time
	completedAt   time.Time
	failureReason string
	failureErr    error

	log *ExecutionLog
}

// NewBaseContext 创建上下文，生成 ID 并记录开始时间.
//
// executorID 可以为空.
func NewBaseContext(sagaType, executorID string) *BaseContext {
	c := &BaseContext{
		id:          uuid.NewString(),
		sagaType:    sagaType,
		executorID:  executorID,
		status:      StatusStarted,
		stepResults: make(map[string]StepResult),
		compData:    make(map[string]any),
		startedAt:   time.Now(),
		log:         &ExecutionLog{},
	}
	c.fsm = newStatusMachine(&c.status)
	return c
}

// Base 实现 Context.
func (c *BaseContext) Base() *BaseContext { return c }

// ID 返回 Saga 实例 ID.
func (c *BaseContext) ID() string { return c.id }

// Type 返回业务流程类型.
func (c *BaseContext) Type() string { return c.sagaType }

// ExecutorID 返回发起者 ID.
func (c *BaseContext) ExecutorID() string { return c.executorID }

// Status 返回当前状态.
func (c *BaseContext) Status() Status { return c.status }

// StartedAt 返回创建时间.
func (c *BaseContext) StartedAt() time.Time { return c.startedAt }

// CompletedAt 返回结束时间，仅在终态时有效.
//
// 时间在第一次进入终态时记录，补偿结束后保持不变.
func (c *BaseContext) CompletedAt() (time.Time, bool) {
	if c.completedAt.IsZero() || !c.status.IsTerminal() {
		return time.Time{}, false
	}
	return c.completedAt, true
}

// FailureReason 返回 Fail 记录的原因.
func (c *BaseContext) FailureReason() string { return c.failureReason }

// FailureError 返回 Fail 记录的错误.
func (c *BaseContext) FailureError() error { return c.failureErr }

// ExecutionLog 返回本次运行的执行日志.
func (c *BaseContext) ExecutionLog() *ExecutionLog { return c.log }

// RecordStepResult 记录步骤结果，同名步骤后写覆盖.
func (c *BaseContext) RecordStepResult(step string, r StepResult) {
	if _, ok := c.stepResults[step]; !ok {
		c.stepOrder = append(c.stepOrder, step)
	}
	c.stepResults[step] = r
}

// StepResult 返回指定步骤的结果.
func (c *BaseContext) StepResult(step string) (StepResult, bool) {
	r, ok := c.stepResults[step]
	return r, ok
}

// StepResults 返回全部步骤结果的副本.
func (c *BaseContext) StepResults() map[string]StepResult {
	out := make(map[string]StepResult, len(c.stepResults))
	for k, v := range c.stepResults {
		out[k] = v
	}
	return out
}

// StepNames 按首次记录顺序返回步骤名.
func (c *BaseContext) StepNames() []string {
	out := make([]string, len(c.stepOrder))
	copy(out, c.stepOrder)
	return out
}

// PutCompensationData 保存补偿数据.
func (c *BaseContext) PutCompensationData(key string, value any) {
	c.compData[key] = value
}

// CompensationData 读取补偿数据.
func (c *BaseContext) CompensationData(key string) (any, bool) {
	v, ok := c.compData[key]
	return v, ok
}

// CompensationValue 按类型读取补偿数据，键不存在或类型不匹配时返回零值和 false.
func CompensationValue[T any](sc Context, key string) (T, bool) {
	var zero T
	v, ok := sc.Base().CompensationData(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// MarkProcessing STARTED -> PROCESSING.
func (c *BaseContext) MarkProcessing() error {
	return fire(c.fsm, c.status, triggerProcess)
}

// Complete PROCESSING -> COMPLETED.
func (c *BaseContext) Complete() error {
	if err := fire(c.fsm, c.status, triggerComplete); err != nil {
		return err
	}
	c.markCompletedAt()
	return nil
}

// Fail PROCESSING -> FAILED，记录失败原因和错误.
func (c *BaseContext) Fail(reason string, err error) error {
	if ferr := fire(c.fsm, c.status, triggerFail); ferr != nil {
		return ferr
	}
	c.failureReason = reason
	c.failureErr = err
	c.markCompletedAt()
	return nil
}

// StartCompensation FAILED -> COMPENSATING.
func (c *BaseContext) StartCompensation() error {
	return fire(c.fsm, c.status, triggerCompensate)
}

// MarkCompensated COMPENSATING -> COMPENSATED.
func (c *BaseContext) MarkCompensated() error {
	if err := fire(c.fsm, c.status, triggerCompensated); err != nil {
		return err
	}
	c.markCompletedAt()
	return nil
}

// MarkCompensationFailed COMPENSATING -> FAILED，需要人工介入.
func (c *BaseContext) MarkCompensationFailed() error {
	return fire(c.fsm, c.status, triggerCompensationFailed)
}

func (c *BaseContext) markCompletedAt() {
	if c.completedAt.IsZero() {
		c.completedAt = time.Now()
	}
}
