package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"

	"github.com/Tsukikage7/questline/logger"
)

const maxReconnectDelay = 30 * time.Second

// amqpChannel 生产者用到的 channel 方法.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// rabbitMQConnection 维护一条 AMQP 连接，断线后按指数退避重连.
//
// 每次连接成功都会调用 onConnect，由生产者在新连接上重建 channel.
type rabbitMQConnection struct {
	url       string
	delay     time.Duration
	logger    logger.Logger
	onConnect func(*amqp.Connection) error

	mu   sync.Mutex
	conn *amqp.Connection

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func dialRabbitMQ(url string, delay time.Duration, log logger.Logger, onConnect func(*amqp.Connection) error) (*rabbitMQConnection, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &rabbitMQConnection{
		url:       url,
		delay:     delay,
		logger:    log,
		onConnect: onConnect,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	closed, err := c.connect()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrCreateProducer, err)
	}

	go c.watch(closed)
	return c, nil
}

// connect 建立连接并执行 onConnect，返回连接关闭通知.
func (c *rabbitMQConnection) connect() (<-chan *amqp.Error, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, err
	}
	if err := c.onConnect(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.conn = conn
	return closed, nil
}

func (c *rabbitMQConnection) watch(closed <-chan *amqp.Error) {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case amqpErr, ok := <-closed:
			if !ok && c.ctx.Err() != nil {
				return
			}
			c.logger.With(logger.Any("reason", amqpErr)).Warn("[Messaging] RabbitMQ 连接断开，开始重连")
		}

		next, err := c.reconnect()
		if err != nil {
			return
		}
		closed = next
		c.logger.Info("[Messaging] RabbitMQ 已重连")
	}
}

// reconnect 退避重试直到成功或连接被关闭.
func (c *rabbitMQConnection) reconnect() (<-chan *amqp.Error, error) {
	backoff := retry.WithCappedDuration(maxReconnectDelay, retry.NewExponential(c.delay))

	var closed <-chan *amqp.Error
	err := retry.Do(c.ctx, backoff, func(context.Context) error {
		next, err := c.connect()
		if err != nil {
			c.logger.With(logger.Err(err)).Warn("[Messaging] RabbitMQ 重连失败")
			return retry.RetryableError(err)
		}
		closed = next
		return nil
	})
	return closed, err
}

// Close 停止重连并关闭连接.
func (c *rabbitMQConnection) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	<-c.done
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
