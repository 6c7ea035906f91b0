// Package eventbus 提供进程内的 Saga 事件总线.
//
// 同步模式下 Publish 依次调用订阅者并汇总错误；异步模式下事件经 watermill
// gochannel 投递，由 Router 上的处理器分发给订阅者，Publish 只在投递失败时返回错误.
// 异步模式不保证事件之间的分发顺序，需要严格顺序时使用同步模式.
//
// 示例:
//
//	bus, err := eventbus.New(eventbus.WithAsync(64), eventbus.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	bus.Subscribe(saga.EventCompensated, func(ctx context.Context, ev saga.Event) error {
//	    return alert(ctx, ev)
//	})
//	orch := saga.New[*Ctx]("MISSION_COMPLETION").
//	    Options(saga.WithPublisher(saga.PublishTo(bus))).
//	    Build()
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"golang.org/x/sync/semaphore"

	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/saga"
)

// Wildcard 订阅所有事件时使用的事件名.
const Wildcard = "*"

// topic 异步模式下 gochannel 使用的主题.
const topic = "questline.saga.events"

const metadataEvent = "event"

var (
	// ErrBusClosed 事件总线已关闭.
	ErrBusClosed = errors.New("eventbus: 事件总线已关闭")

	// ErrHandlerPanicked 订阅者发生 panic.
	ErrHandlerPanicked = errors.New("eventbus: 订阅者 panic")
)

// Handler 事件处理器.
type Handler func(ctx context.Context, ev saga.Event) error

// Option 事件总线配置选项.
type Option func(*Bus)

// WithAsync 启用异步分发，buffer 为同时在途的事件上限，也是 gochannel 的输出缓冲.
func WithAsync(buffer int) Option {
	return func(b *Bus) {
		if buffer < 1 {
			buffer = 1
		}
		b.buffer = buffer
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(b *Bus) {
		b.logger = log
	}
}

// WithHistory 保留最近 n 条已发布事件，便于调试和测试.
func WithHistory(n int) Option {
	return func(b *Bus) {
		b.historyLimit = n
	}
}

// envelope 随消息 UUID 暂存的原始事件.
//
// 进程内投递不做序列化，Payload 中的具体类型和调用方 ctx 原样交给订阅者.
type envelope struct {
	ctx context.Context
	ev  saga.Event
}

// Bus 事件总线.
type Bus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   logger.Logger

	history      []saga.Event
	historyLimit int
	historyMu    sync.Mutex

	buffer    int
	pubsub    *gochannel.GoChannel
	router    *message.Router
	slots     *semaphore.Weighted
	envelopes sync.Map
	pending   sync.WaitGroup
	routerErr chan error

	closed    bool
	closeOnce sync.Once
	closeErr  error
}

var _ saga.Sink = (*Bus)(nil)

// New 创建事件总线，异步模式下会启动 watermill Router 并等待其就绪.
func New(opts ...Option) (*Bus, error) {
	b := &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.buffer == 0 {
		return b, nil
	}

	wlog := newWatermillLogger(b.logger)
	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(b.buffer),
	}, wlog)

	router, err := message.NewRouter(message.RouterConfig{}, wlog)
	if err != nil {
		_ = b.pubsub.Close()
		return nil, fmt.Errorf("eventbus: create router: %w", err)
	}
	router.AddNoPublisherHandler("questline_eventbus", topic, b.pubsub, b.handle)
	b.router = router
	b.slots = semaphore.NewWeighted(int64(b.buffer))
	b.routerErr = make(chan error, 1)

	go func() {
		b.routerErr <- router.Run(context.Background())
	}()
	select {
	case <-router.Running():
	case err := <-b.routerErr:
		_ = b.pubsub.Close()
		return nil, fmt.Errorf("eventbus: run router: %w", err)
	}
	return b, nil
}

// Subscribe 订阅事件.
func (b *Bus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// SubscribeAll 订阅所有事件.
func (b *Bus) SubscribeAll(handler Handler) {
	b.Subscribe(Wildcard, handler)
}

// Publish 发布事件，实现 saga.Sink.
//
// 异步模式下在途事件达到上限时阻塞，直到有空位或 ctx 结束.
func (b *Bus) Publish(ctx context.Context, ev saga.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	b.pending.Add(1)
	b.mu.RUnlock()

	b.remember(ev)

	if b.router == nil {
		defer b.pending.Done()
		return b.dispatch(ctx, ev)
	}

	if err := b.slots.Acquire(ctx, 1); err != nil {
		b.pending.Done()
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(metadataEvent, ev.Name)
	msg.Metadata.Set("saga_id", ev.SagaID)
	b.envelopes.Store(msg.UUID, envelope{ctx: context.WithoutCancel(ctx), ev: ev})

	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.envelopes.Delete(msg.UUID)
		b.slots.Release(1)
		b.pending.Done()
		return fmt.Errorf("eventbus: publish %s: %w", ev.Name, err)
	}
	return nil
}

// History 返回最近发布的事件副本.
func (b *Bus) History() []saga.Event {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	out := make([]saga.Event, len(b.history))
	copy(out, b.history)
	return out
}

// Close 停止接收新事件并等待已发布的事件分发完毕，可重复调用.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.pending.Wait()
		if b.router == nil {
			return
		}
		b.closeErr = errors.Join(b.router.Close(), b.pubsub.Close(), <-b.routerErr)
	})
	return b.closeErr
}

// handle Router 上的消息处理器.
//
// 总是返回 nil 以确认消息，订阅者的错误只记录日志，否则 gochannel 会无限重投.
func (b *Bus) handle(msg *message.Message) error {
	v, ok := b.envelopes.LoadAndDelete(msg.UUID)
	if !ok {
		b.logger.Warn("[EventBus] 未找到消息对应的事件",
			logger.String("uuid", msg.UUID),
			logger.String("event", msg.Metadata.Get(metadataEvent)),
		)
		return nil
	}
	env := v.(envelope)
	defer b.pending.Done()
	defer b.slots.Release(1)

	if err := b.dispatch(env.ctx, env.ev); err != nil {
		b.logger.WithContext(env.ctx).Warn("[EventBus] 异步分发失败",
			logger.String("event", env.ev.Name),
			logger.SagaID(env.ev.SagaID),
			logger.Err(err),
		)
	}
	return nil
}

// dispatch 依次调用订阅者，单个订阅者失败不影响其余订阅者.
func (b *Bus) dispatch(ctx context.Context, ev saga.Event) error {
	b.mu.RLock()
	specific := b.handlers[ev.Name]
	all := b.handlers[Wildcard]
	handlers := make([]Handler, 0, len(specific)+len(all))
	handlers = append(handlers, specific...)
	handlers = append(handlers, all...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := invoke(ctx, h, ev); err != nil {
			errs = append(errs, err)
		}
	}

	b.logger.WithContext(ctx).Debug("[EventBus] 事件已分发",
		logger.String("event", ev.Name),
		logger.SagaID(ev.SagaID),
		logger.Int("handlers", len(handlers)),
	)
	return errors.Join(errs...)
}

// invoke 经 watermill Recoverer 中间件调用订阅者，panic 转换为 ErrHandlerPanicked.
func invoke(ctx context.Context, h Handler, ev saga.Event) error {
	recovered := middleware.Recoverer(func(*message.Message) ([]*message.Message, error) {
		return nil, h(ctx, ev)
	})
	_, err := recovered(nil)

	var perr middleware.RecoveredPanicError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %v", ErrHandlerPanicked, perr.V)
	}
	return err
}

func (b *Bus) remember(ev saga.Event) {
	if b.historyLimit <= 0 {
		return
	}
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, ev)
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
}
