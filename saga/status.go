package saga

import (
	"context"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"
)

// Status Saga 运行状态.
type Status string

// Saga 状态常量.
const (
	StatusStarted      Status = "STARTED"
	StatusProcessing   Status = "PROCESSING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
)

// IsTerminal 是否为终态.
//
// FAILED 在补偿开始前和补偿部分失败后都处于该状态，后者需要人工介入.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// ParseStatus 解析状态名，忽略大小写.
func ParseStatus(name string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(name)))
	switch st {
	case StatusStarted, StatusProcessing, StatusCompleted,
		StatusFailed, StatusCompensating, StatusCompensated:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

type trigger string

const (
	triggerProcess            trigger = "process"
	triggerComplete           trigger = "complete"
	triggerFail               trigger = "fail"
	triggerCompensate         trigger = "compensate"
	triggerCompensated        trigger = "compensated"
	triggerCompensationFailed trigger = "compensation_failed"
)

// newStatusMachine 创建绑定到 *Status 的状态机.
//
//	STARTED -> PROCESSING -> COMPLETED
//	                      -> FAILED -> COMPENSATING -> COMPENSATED
//	                                                -> FAILED
func newStatusMachine(status *Status) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) {
			return *status, nil
		},
		func(_ context.Context, s stateless.State) error {
			*status = s.(Status)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(StatusStarted).
		Permit(triggerProcess, StatusProcessing)

	sm.Configure(StatusProcessing).
		Permit(triggerComplete, StatusCompleted).
		Permit(triggerFail, StatusFailed)

	sm.Configure(StatusFailed).
		Permit(triggerCompensate, StatusCompensating)

	sm.Configure(StatusCompensating).
		Permit(triggerCompensated, StatusCompensated).
		Permit(triggerCompensationFailed, StatusFailed)

	return sm
}

func fire(sm *stateless.StateMachine, status Status, t trigger) error {
	if err := sm.Fire(t); err != nil {
		return fmt.Errorf("%w: %s 不允许 %s", ErrInvalidTransition, status, t)
	}
	return nil
}
