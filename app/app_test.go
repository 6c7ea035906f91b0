package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/questline/logger"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func blocking(name string, rec *recorder) Component {
	return Func(name,
		func(ctx context.Context) error {
			rec.add("start:" + name)
			<-ctx.Done()
			return nil
		},
		func(context.Context) error {
			rec.add("stop:" + name)
			return nil
		},
	)
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestApplication_StopsInReverseOrder(t *testing.T) {
	rec := &recorder{}
	a, err := New(
		Logger(logger.NewNop()),
		Name("questline-test"),
		RegisterCleanup("second", func(context.Context) error { rec.add("cleanup:second"); return nil }, 2),
		RegisterCleanup("first", func(context.Context) error { rec.add("cleanup:first"); return errors.New("ignored") }, 1),
		AfterStop(func(context.Context) error { rec.add("after-stop"); return nil }),
	)
	require.NoError(t, err)
	a.Use(blocking("a", rec), blocking("b", rec))
	a.OnShutdown("late", func(context.Context) error { rec.add("cleanup:late"); return nil }, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(rec.list()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("application did not stop")
	}

	calls := rec.list()
	assert.Equal(t, []string{
		"stop:b", "stop:a",
		"cleanup:first", "cleanup:second", "cleanup:late",
		"after-stop",
	}, calls[2:])
}

func TestApplication_ComponentFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("listen: address in use")

	a, err := New(Logger(logger.NewNop()))
	require.NoError(t, err)
	a.Use(
		blocking("scheduler", rec),
		Func("http", func(context.Context) error { return boom }, nil),
	)

	err = a.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, rec.list(), "stop:scheduler")
}

func TestApplication_BeforeStartFailure(t *testing.T) {
	rec := &recorder{}
	a, err := New(
		Logger(logger.NewNop()),
		BeforeStart(func(context.Context) error { return errors.New("migrate failed") }),
	)
	require.NoError(t, err)
	a.Use(blocking("a", rec))

	err = a.Run(context.Background())
	assert.ErrorContains(t, err, "migrate failed")
	assert.Empty(t, rec.list())
}

func TestApplication_RunTwice(t *testing.T) {
	a, err := New(Logger(logger.NewNop()))
	require.NoError(t, err)

	started := make(chan struct{})
	a.Use(Func("a", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}, nil))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	<-started

	assert.ErrorIs(t, a.Run(context.Background()), ErrRunning)

	a.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, "questline", a.Name())
	assert.Equal(t, "dev", a.Version())
}
