package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/questline/saga"
)

func newBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	bus, err := New(opts...)
	require.NoError(t, err)
	return bus
}

func TestBus_SyncDispatch(t *testing.T) {
	bus := newBus(t, WithHistory(10))
	defer bus.Close()

	var got []string
	bus.Subscribe(saga.EventCompleted, func(_ context.Context, ev saga.Event) error {
		got = append(got, "specific:"+ev.SagaID)
		return nil
	})
	bus.SubscribeAll(func(_ context.Context, ev saga.Event) error {
		got = append(got, "all:"+ev.Name)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: saga.EventCompleted, SagaID: "s1"}))
	require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: saga.EventFailed, SagaID: "s2"}))

	assert.Equal(t, []string{"specific:s1", "all:saga.completed", "all:saga.failed"}, got)
	assert.Len(t, bus.History(), 2)
}

func TestBus_HandlerErrorsAreJoined(t *testing.T) {
	bus := newBus(t)
	errA := errors.New("a")

	var lastCalled bool
	bus.Subscribe("x", func(context.Context, saga.Event) error { return errA })
	bus.Subscribe("x", func(context.Context, saga.Event) error { panic("boom") })
	bus.Subscribe("x", func(context.Context, saga.Event) error {
		lastCalled = true
		return nil
	})

	err := bus.Publish(context.Background(), saga.Event{Name: "x"})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, ErrHandlerPanicked)
	assert.True(t, lastCalled)
}

func TestBus_AsyncDeliversEveryEvent(t *testing.T) {
	bus := newBus(t, WithAsync(4))

	var (
		mu  sync.Mutex
		ids []string
	)
	bus.SubscribeAll(func(_ context.Context, ev saga.Event) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, ev.SagaID)
		return nil
	})

	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: "e", SagaID: id}))
	}
	require.NoError(t, bus.Close())

	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, ids)
}

type ctxKey struct{}

type rewardPayload struct {
	Gold int
}

func TestBus_AsyncKeepsContextAndPayload(t *testing.T) {
	bus := newBus(t, WithAsync(2))

	got := make(chan saga.Event, 1)
	var traceID any
	bus.Subscribe("e", func(ctx context.Context, ev saga.Event) error {
		traceID = ctx.Value(ctxKey{})
		got <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "trace-1"))
	require.NoError(t, bus.Publish(ctx, saga.Event{Name: "e", Payload: rewardPayload{Gold: 10}}))
	cancel()
	require.NoError(t, bus.Close())

	ev := <-got
	assert.Equal(t, rewardPayload{Gold: 10}, ev.Payload)
	assert.Equal(t, "trace-1", traceID)
}

func TestBus_AsyncHandlerPanicIsContained(t *testing.T) {
	bus := newBus(t, WithAsync(2))

	var calls atomic.Int32
	bus.Subscribe("e", func(context.Context, saga.Event) error { panic("boom") })
	bus.SubscribeAll(func(context.Context, saga.Event) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: "e"}))
	require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: "e"}))
	require.NoError(t, bus.Close())

	assert.EqualValues(t, 2, calls.Load())
}

func TestBus_AsyncHandlerErrorDoesNotSurface(t *testing.T) {
	bus := newBus(t, WithAsync(1))
	bus.Subscribe("e", func(context.Context, saga.Event) error { return errors.New("ignored") })

	assert.NoError(t, bus.Publish(context.Background(), saga.Event{Name: "e"}))
	assert.NoError(t, bus.Close())
}

func TestBus_AsyncCanceledContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus := newBus(t, WithAsync(1))
	bus.Subscribe("e", func(context.Context, saga.Event) error {
		started <- struct{}{}
		<-release
		return nil
	})

	// 第一个事件阻塞在订阅者中，占满唯一的在途名额
	require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: "e"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, saga.Event{Name: "e"}), context.DeadlineExceeded)

	close(release)
	require.NoError(t, bus.Close())
}

func TestBus_Closed(t *testing.T) {
	bus := newBus(t, WithAsync(2))
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), saga.Event{Name: "e"}), ErrBusClosed)
}

func TestBus_HistoryLimit(t *testing.T) {
	bus := newBus(t, WithHistory(2))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(context.Background(), saga.Event{Name: "e", SagaID: id}))
	}

	history := bus.History()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].SagaID)
	assert.Equal(t, "c", history[1].SagaID)
}

type busCtx struct {
	*saga.BaseContext
}

func TestBus_AsSagaPublisher(t *testing.T) {
	bus := newBus(t, WithAsync(8))

	var compensated atomic.Int32
	bus.Subscribe(saga.EventCompensated, func(_ context.Context, ev saga.Event) error {
		if ev.Status == saga.StatusCompensated && ev.FailedStep == "second" {
			compensated.Add(1)
		}
		return nil
	})

	orch := saga.New[*busCtx]("BUS").
		Step("first", func(context.Context, *busCtx) saga.StepResult { return saga.Success("") }, nil).
		Step("second", func(context.Context, *busCtx) saga.StepResult { return saga.Failure("不可用") }, nil).
		Options(saga.WithPublisher(saga.PublishTo(bus))).
		Build()

	result, err := orch.Execute(context.Background(), &busCtx{saga.NewBaseContext("BUS", "")})
	require.NoError(t, err)
	assert.True(t, result.IsCompensated())

	require.NoError(t, bus.Close())
	assert.EqualValues(t, 1, compensated.Load())
}
