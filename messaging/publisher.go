package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/saga"
)

// 事件消息头.
const (
	HeaderEvent    = "saga-event"
	HeaderSagaType = "saga-type"
	HeaderStatus   = "saga-status"
)

// EventRecorder 记录事件投递结果，metrics.PrometheusCollector 实现了该接口.
type EventRecorder interface {
	RecordEvent(transport, event string, success bool)
}

// SinkOption EventSink 配置选项.
type SinkOption func(*EventSink)

// WithTopicPrefix 设置主题前缀，默认主题为事件名本身.
func WithTopicPrefix(prefix string) SinkOption {
	return func(s *EventSink) {
		s.prefix = prefix
	}
}

// WithTopic 为指定事件设置独立主题，优先于前缀规则.
func WithTopic(event, topic string) SinkOption {
	return func(s *EventSink) {
		s.topics[event] = topic
	}
}

// WithTransport 设置指标中的 transport 标签，默认 kafka.
func WithTransport(transport string) SinkOption {
	return func(s *EventSink) {
		s.transport = transport
	}
}

// WithEventRecorder 设置投递指标记录器.
func WithEventRecorder(r EventRecorder) SinkOption {
	return func(s *EventSink) {
		s.recorder = r
	}
}

// WithSinkLogger 设置日志记录器.
func WithSinkLogger(log logger.Logger) SinkOption {
	return func(s *EventSink) {
		s.logger = log
	}
}

// EventSink 将 saga.Event 编码为 JSON 并通过 Producer 发送.
//
// 消息 Key 为 Saga ID，自定义事件没有 Saga ID 时 Key 为空.
type EventSink struct {
	producer  Producer
	transport string
	prefix    string
	topics    map[string]string
	recorder  EventRecorder
	logger    logger.Logger
}

var _ saga.Sink = (*EventSink)(nil)

// NewEventSink 创建事件投递器.
func NewEventSink(producer Producer, opts ...SinkOption) (*EventSink, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}

	s := &EventSink{
		producer:  producer,
		transport: TypeKafka,
		topics:    make(map[string]string),
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Topic 返回事件对应的主题.
func (s *EventSink) Topic(event string) string {
	if topic, ok := s.topics[event]; ok {
		return topic
	}
	return s.prefix + event
}

// Publish 实现 saga.Sink.
func (s *EventSink) Publish(ctx context.Context, ev saga.Event) error {
	if ev.Name == "" {
		return ErrEmptyTopic
	}

	body, err := json.Marshal(ev)
	if err != nil {
		s.record(ev.Name, false)
		return fmt.Errorf("%w: %v", ErrEncodeEvent, err)
	}

	msg := &Message{
		Topic: s.Topic(ev.Name),
		Value: body,
		Headers: map[string]string{
			HeaderEvent: ev.Name,
		},
	}
	if ev.SagaID != "" {
		msg.Key = []byte(ev.SagaID)
	}
	if ev.SagaType != "" {
		msg.Headers[HeaderSagaType] = ev.SagaType
	}
	if ev.Status != "" {
		msg.Headers[HeaderStatus] = ev.Status.String()
	}

	sent, err := s.producer.Send(ctx, msg)
	if err != nil {
		s.record(ev.Name, false)
		return err
	}
	s.record(ev.Name, true)

	s.logger.WithContext(ctx).With(
		logger.String("event", ev.Name),
		logger.SagaID(ev.SagaID),
		logger.String("topic", sent.Topic),
		logger.Int64("offset", sent.Offset),
	).Debug("[Messaging] 事件已投递")
	return nil
}

// Close 关闭底层生产者.
func (s *EventSink) Close() error {
	return s.producer.Close()
}

func (s *EventSink) record(event string, success bool) {
	if s.recorder != nil {
		s.recorder.RecordEvent(s.transport, event, success)
	}
}
