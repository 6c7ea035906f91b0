package saga

import (
	"context"
	"time"
)

// 事件名常量.
const (
	EventCompleted   = "saga.completed"
	EventCompensated = "saga.compensated"
	EventFailed      = "saga.failed"
)

// Event Saga 终态通知.
type Event struct {
	Name          string    `json:"name"`
	SagaID        string    `json:"sagaId"`
	SagaType      string    `json:"sagaType"`
	ExecutorID    string    `json:"executorId,omitempty"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	FailedStep    string    `json:"failedStep,omitempty"`
	Payload       any       `json:"payload,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// EventPublisher 事件发布者.
//
// 返回的错误只会被记录，不影响 Saga 结果.
type EventPublisher interface {
	SagaCompleted(ctx context.Context, ev Event) error
	SagaCompensated(ctx context.Context, ev Event) error
	SagaFailed(ctx context.Context, ev Event) error
	Custom(ctx context.Context, name string, payload any) error
}

// Sink 事件投递目标，例如进程内事件总线或消息队列.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc 函数形式的 Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish 实现 Sink.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// PublishTo 返回将所有事件投递到 sink 的 EventPublisher.
func PublishTo(sink Sink) EventPublisher {
	return sinkPublisher{sink: sink}
}

type sinkPublisher struct {
	sink Sink
}

func (p sinkPublisher) SagaCompleted(ctx context.Context, ev Event) error {
	ev.Name = EventCompleted
	return p.sink.Publish(ctx, ev)
}

func (p sinkPublisher) SagaCompensated(ctx context.Context, ev Event) error {
	ev.Name = EventCompensated
	return p.sink.Publish(ctx, ev)
}

func (p sinkPublisher) SagaFailed(ctx context.Context, ev Event) error {
	ev.Name = EventFailed
	return p.sink.Publish(ctx, ev)
}

func (p sinkPublisher) Custom(ctx context.Context, name string, payload any) error {
	return p.sink.Publish(ctx, Event{Name: name, Payload: payload, OccurredAt: time.Now()})
}

// newEvent 根据上下文当前状态构造事件.
func newEvent(base *BaseContext, message, failedStep string) Event {
	return Event{
		SagaID:        base.ID(),
		SagaType:      base.Type(),
		ExecutorID:    base.ExecutorID(),
		Status:        base.Status(),
		Message:       message,
		FailureReason: base.FailureReason(),
		FailedStep:    failedStep,
		OccurredAt:    time.Now(),
	}
}
