// Package messaging 将 Saga 事件投递到消息队列.
//
// Kafka 与 RabbitMQ 共用 Producer 接口，EventSink 负责把 saga.Event
// 编码成消息并选择主题:
//
//	producer, _ := messaging.NewProducer(cfg, messaging.WithProducerLogger(log))
//	sink, _ := messaging.NewEventSink(producer,
//	    messaging.WithTopicPrefix(cfg.TopicPrefix),
//	    messaging.WithEventRecorder(collector),
//	)
//	defer sink.Close()
//
//	orch := saga.New[*Ctx]("MISSION_COMPLETION").
//	    Options(saga.WithPublisher(saga.PublishTo(sink))).
//	    Build()
package messaging

import (
	"context"
	"errors"
	"maps"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/questline/logger"
)

// 配置和构造阶段的错误.
var (
	ErrNilConfig       = errors.New("messaging: 配置为空")
	ErrInvalidConfig   = errors.New("messaging: 配置无效")
	ErrUnsupportedType = errors.New("messaging: 不支持的消息队列类型")
	ErrNoBrokers       = errors.New("messaging: 未配置服务器地址")
	ErrNilProducer     = errors.New("messaging: 生产者为空")
	ErrCreateProducer  = errors.New("messaging: 创建生产者失败")
)

// 发送阶段的错误.
var (
	ErrProducerClosed = errors.New("messaging: 生产者已关闭")
	// ErrNotConnected RabbitMQ 连接断开且尚未重连成功.
	ErrNotConnected = errors.New("messaging: 连接不可用")
	ErrNilMessage   = errors.New("messaging: 消息为空")
	ErrEmptyTopic   = errors.New("messaging: 消息主题为空")
	ErrSendMessage  = errors.New("messaging: 消息发送失败")
	// ErrNacked broker 返回 nack.
	ErrNacked      = errors.New("messaging: 消息被 broker 拒绝")
	ErrEncodeEvent = errors.New("messaging: 事件序列化失败")
)

// 消息队列类型.
const (
	TypeKafka    = "kafka"
	TypeRabbitMQ = "rabbitmq"
)

// Message 一条待发送的消息.
//
// EventSink 以 Saga ID 作为 Key，同一 Saga 的事件在 Kafka 中落在同一分区.
type Message struct {
	// Topic Kafka 主题或 RabbitMQ routing key
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string

	// Send 返回的副本上填充，RabbitMQ 只有 Timestamp
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Producer 消息生产者.
type Producer interface {
	// Send 发送一条消息并等待 broker 确认，返回带有投递位置的副本.
	Send(ctx context.Context, msg *Message) (*Message, error)
	// Close 关闭生产者，重复调用安全.
	Close() error
}

// ProducerOption 生产者选项.
type ProducerOption func(*producerOptions)

type producerOptions struct {
	logger logger.Logger
	tracer *messagingTracer
}

// WithProducerLogger 设置日志记录器.
func WithProducerLogger(log logger.Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = log
	}
}

// WithProducerTracing 发送时创建 producer span 并把追踪上下文写入消息头.
func WithProducerTracing(tp trace.TracerProvider) ProducerOption {
	return func(o *producerOptions) {
		o.tracer = newMessagingTracer(tp)
	}
}

func newProducerOptions(opts []ProducerOption) *producerOptions {
	o := &producerOptions{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewProducer 按 cfg.Type 创建生产者.
func NewProducer(cfg *Config, opts ...ProducerOption) (Producer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	c := *cfg
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.Type == TypeRabbitMQ {
		return NewRabbitMQProducer(c.URL, c.RabbitMQ, opts...)
	}
	return NewKafkaProducer(c.Brokers, c.Kafka, opts...)
}

// checkSend 发送前的公共校验.
func checkSend(ctx context.Context, closed bool, msg *Message) error {
	if closed {
		return ErrProducerClosed
	}
	if msg == nil {
		return ErrNilMessage
	}
	if msg.Topic == "" {
		return ErrEmptyTopic
	}
	return ctx.Err()
}

// outgoingHeaders 返回待发送的消息头，开启追踪时附带追踪上下文，不修改调用方的 map.
func outgoingHeaders(ctx context.Context, tracer *messagingTracer, headers map[string]string) map[string]string {
	if tracer == nil {
		return headers
	}
	out := make(map[string]string, len(headers)+2)
	maps.Copy(out, headers)
	tracer.inject(ctx, out)
	return out
}
