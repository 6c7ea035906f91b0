package messaging

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/Tsukikage7/questline/logger"
)

// KafkaProducer 同步发送的 Kafka 生产者.
//
// 同一 Saga 的事件以 Saga ID 为 Key，落在同一分区并保持顺序.
type KafkaProducer struct {
	producer sarama.SyncProducer
	closed   atomic.Bool
	logger   logger.Logger
	tracer   *messagingTracer
}

var _ Producer = (*KafkaProducer)(nil)

// NewKafkaProducer 连接 brokers 并创建生产者.
func NewKafkaProducer(brokers []string, cfg KafkaConfig, opts ...ProducerOption) (*KafkaProducer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	sc, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}

	sp, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateProducer, err)
	}

	p := newKafkaProducer(sp, newProducerOptions(opts))
	p.logger.With(
		logger.Any("brokers", brokers),
		logger.String("acks", cfg.Acks),
		logger.String("compression", cfg.Compression),
	).Info("[Messaging] Kafka 生产者已连接")
	return p, nil
}

func newKafkaProducer(sp sarama.SyncProducer, o *producerOptions) *KafkaProducer {
	return &KafkaProducer{producer: sp, logger: o.logger, tracer: o.tracer}
}

// Send 实现 Producer.
func (p *KafkaProducer) Send(ctx context.Context, msg *Message) (_ *Message, err error) {
	if err := checkSend(ctx, p.closed.Load(), msg); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.start(ctx, TypeKafka, msg)
	defer func() { finish(span, err) }()

	pm := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Value:     sarama.ByteEncoder(msg.Value),
		Timestamp: time.Now(),
	}
	if len(msg.Key) > 0 {
		pm.Key = sarama.ByteEncoder(msg.Key)
	}
	for k, v := range outgoingHeaders(ctx, p.tracer, msg.Headers) {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendMessage, err)
	}

	sent := *msg
	sent.Partition = partition
	sent.Offset = offset
	sent.Timestamp = pm.Timestamp
	return &sent, nil
}

// Close 实现 Producer.
func (p *KafkaProducer) Close() error {
	if p.closed.Swap(true) || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
