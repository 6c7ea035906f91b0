package saga

import (
	"errors"
	"fmt"
)

// 预定义错误.
var (
	// ErrNilContext Saga 上下文为空.
	ErrNilContext = errors.New("saga: 上下文不能为空")

	// ErrInvalidTransition 非法的状态迁移.
	ErrInvalidTransition = errors.New("saga: 非法的状态迁移")

	// ErrStepPanicked 步骤执行过程中发生 panic.
	ErrStepPanicked = errors.New("saga: 步骤发生 panic")

	// ErrSagaNotFound Saga 记录不存在.
	ErrSagaNotFound = errors.New("saga: Saga 不存在")

	// ErrStepFailed 步骤返回失败结果且未携带错误.
	ErrStepFailed = errors.New("saga: 步骤执行失败")

	// ErrMaxRetriesExceeded 重试用尽且没有任何一次尝试返回结果.
	ErrMaxRetriesExceeded = errors.New("saga: 超过最大重试次数")

	// ErrUnknownStatus 无法识别的状态名.
	ErrUnknownStatus = errors.New("saga: 未知状态")
)

// PanicError 从步骤的 Execute 或 Compensate 中恢复的 panic.
type PanicError struct {
	Step  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("saga: 步骤 %s 发生 panic: %v", e.Step, e.Value)
}

// Unwrap 使 errors.Is(err, ErrStepPanicked) 成立.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return errors.Join(ErrStepPanicked, err)
	}
	return ErrStepPanicked
}
