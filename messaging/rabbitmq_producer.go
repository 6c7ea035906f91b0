package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Tsukikage7/questline/logger"
)

// RabbitMQProducer RabbitMQ 生产者.
//
// Topic 作为 routing key，Key 写入 MessageId，事件以持久化模式发布.
// 断线重连后自动在新连接上重建 channel.
type RabbitMQProducer struct {
	cfg    RabbitMQConfig
	logger logger.Logger
	tracer *messagingTracer

	mu      sync.RWMutex
	channel amqpChannel
	conn    *rabbitMQConnection
	closed  atomic.Bool
}

var _ Producer = (*RabbitMQProducer)(nil)

// NewRabbitMQProducer 连接 url 并创建生产者.
func NewRabbitMQProducer(url string, cfg RabbitMQConfig, opts ...ProducerOption) (*RabbitMQProducer, error) {
	if url == "" {
		return nil, ErrNoBrokers
	}
	o := newProducerOptions(opts)
	p := &RabbitMQProducer{cfg: cfg, logger: o.logger, tracer: o.tracer}

	conn, err := dialRabbitMQ(url, cfg.ReconnectDelay, p.logger, func(c *amqp.Connection) error {
		ch, err := c.Channel()
		if err != nil {
			return err
		}
		return p.useChannel(ch)
	})
	if err != nil {
		return nil, err
	}
	p.conn = conn

	p.logger.With(
		logger.String("exchange", cfg.Exchange),
		logger.Bool("confirm", cfg.Confirm),
	).Info("[Messaging] RabbitMQ 生产者已连接")
	return p, nil
}

// useChannel 声明交换机、按配置开启确认模式并替换当前 channel.
func (p *RabbitMQProducer) useChannel(ch amqpChannel) error {
	if p.cfg.Exchange != "" {
		kind := p.cfg.ExchangeType
		if kind == "" {
			kind = amqp.ExchangeDirect
		}
		if err := ch.ExchangeDeclare(p.cfg.Exchange, kind, p.cfg.Durable, false, false, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("declare exchange %s: %w", p.cfg.Exchange, err)
		}
	}
	if p.cfg.Confirm {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return fmt.Errorf("enable confirms: %w", err)
		}
	}

	p.mu.Lock()
	old := p.channel
	p.channel = ch
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Send 实现 Producer.
func (p *RabbitMQProducer) Send(ctx context.Context, msg *Message) (_ *Message, err error) {
	if err := checkSend(ctx, p.closed.Load(), msg); err != nil {
		return nil, err
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()
	if ch == nil {
		return nil, ErrNotConnected
	}

	ctx, span := p.tracer.start(ctx, TypeRabbitMQ, msg)
	defer func() { finish(span, err) }()

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(msg.Key),
		Timestamp:    time.Now(),
		Body:         msg.Value,
	}
	if headers := outgoingHeaders(ctx, p.tracer, msg.Headers); len(headers) > 0 {
		publishing.Headers = make(amqp.Table, len(headers))
		for k, v := range headers {
			publishing.Headers[k] = v
		}
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, msg.Topic, false, false, publishing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendMessage, err)
	}
	// 未开启确认模式时 confirm 为 nil
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSendMessage, err)
		}
		if !acked {
			return nil, ErrNacked
		}
	}

	sent := *msg
	sent.Timestamp = publishing.Timestamp
	return &sent, nil
}

// Close 实现 Producer.
func (p *RabbitMQProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	ch := p.channel
	p.channel = nil
	p.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
