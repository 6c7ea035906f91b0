package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestLocker(t *testing.T, client redis.UniversalClient, opts ...RedisOption) *Redis {
	t.Helper()
	locker, err := NewRedis(client, opts...)
	require.NoError(t, err)
	return locker
}

func TestNewRedis_NilClient(t *testing.T) {
	_, err := NewRedis(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestTryLock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	t.Run("acquire lock", func(t *testing.T) {
		locker := newTestLocker(t, client)
		acquired, err := locker.TryLock(ctx, "purge", time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.True(t, locker.IsHeld("purge"))

		val, err := mr.Get("lock:purge")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(val, locker.OwnerID()+":"), val)

		holder, err := locker.Holder(ctx, "purge")
		require.NoError(t, err)
		assert.Equal(t, val, holder)
		assert.Equal(t, time.Minute, mr.TTL("lock:purge"))

		require.NoError(t, locker.Unlock(ctx, "purge"))
		assert.False(t, mr.Exists("lock:purge"))
	})

	t.Run("lock already held", func(t *testing.T) {
		first := newTestLocker(t, client)
		second := newTestLocker(t, client)

		acquired, err := first.TryLock(ctx, "held", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = second.TryLock(ctx, "held", time.Minute)
		require.NoError(t, err)
		assert.False(t, acquired)
		assert.False(t, second.IsHeld("held"))
	})

	t.Run("lock expires", func(t *testing.T) {
		first := newTestLocker(t, client)
		second := newTestLocker(t, client)

		acquired, _ := first.TryLock(ctx, "expiring", time.Second)
		require.True(t, acquired)

		mr.FastForward(2 * time.Second)

		acquired, err := second.TryLock(ctx, "expiring", time.Second)
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}

func TestLock(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	t.Run("blocking acquire", func(t *testing.T) {
		locker := newTestLocker(t, client)
		require.NoError(t, locker.Lock(ctx, "blocking", time.Minute))
		assert.True(t, locker.IsHeld("blocking"))
	})

	t.Run("context cancellation", func(t *testing.T) {
		holder := newTestLocker(t, client)
		acquired, _ := holder.TryLock(ctx, "cancel", time.Minute)
		require.True(t, acquired)

		waiter := newTestLocker(t, client, WithRetryWait(10*time.Millisecond))
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		err := waiter.Lock(cctx, "cancel", time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("max retries", func(t *testing.T) {
		holder := newTestLocker(t, client)
		acquired, _ := holder.TryLock(ctx, "retries", time.Minute)
		require.True(t, acquired)

		waiter := newTestLocker(t, client, WithRetryWait(time.Millisecond), WithMaxRetries(3))
		err := waiter.Lock(ctx, "retries", time.Minute)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
	})

	t.Run("acquire after release", func(t *testing.T) {
		holder := newTestLocker(t, client)
		acquired, _ := holder.TryLock(ctx, "release", time.Minute)
		require.True(t, acquired)

		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = holder.Unlock(ctx, "release")
		}()

		waiter := newTestLocker(t, client, WithRetryWait(5*time.Millisecond))
		require.NoError(t, waiter.Lock(ctx, "release", time.Minute))
	})
}

func TestUnlock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	t.Run("unlock not held", func(t *testing.T) {
		locker := newTestLocker(t, client)
		assert.ErrorIs(t, locker.Unlock(ctx, "never"), ErrLockNotHeld)
	})

	t.Run("unlock after takeover", func(t *testing.T) {
		locker := newTestLocker(t, client)
		acquired, _ := locker.TryLock(ctx, "takeover", time.Minute)
		require.True(t, acquired)

		require.NoError(t, mr.Set("lock:takeover", "other-owner"))

		assert.ErrorIs(t, locker.Unlock(ctx, "takeover"), ErrLockNotHeld)
		val, _ := mr.Get("lock:takeover")
		assert.Equal(t, "other-owner", val)
		assert.False(t, locker.IsHeld("takeover"))
	})
}

func TestExtend(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	t.Run("successful extend", func(t *testing.T) {
		locker := newTestLocker(t, client)
		acquired, _ := locker.TryLock(ctx, "extend", time.Second)
		require.True(t, acquired)

		require.NoError(t, locker.Extend(ctx, "extend", time.Minute))
		assert.Equal(t, time.Minute, mr.TTL("lock:extend"))
	})

	t.Run("extend not held", func(t *testing.T) {
		locker := newTestLocker(t, client)
		assert.ErrorIs(t, locker.Extend(ctx, "missing", time.Minute), ErrLockNotHeld)
	})

	t.Run("extend after expiry", func(t *testing.T) {
		locker := newTestLocker(t, client)
		acquired, _ := locker.TryLock(ctx, "expired", time.Second)
		require.True(t, acquired)

		mr.FastForward(2 * time.Second)

		assert.ErrorIs(t, locker.Extend(ctx, "expired", time.Minute), ErrLockNotHeld)
		assert.False(t, locker.IsHeld("expired"))
	})
}

func TestWithLock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	locker := newTestLocker(t, client)

	t.Run("successful execution", func(t *testing.T) {
		executed := false
		err := WithLock(ctx, locker, "with", time.Minute, func() error {
			executed = true
			assert.True(t, mr.Exists("lock:with"))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, executed)
		assert.False(t, mr.Exists("lock:with"))
	})

	t.Run("function error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithLock(ctx, locker, "with-err", time.Minute, func() error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, mr.Exists("lock:with-err"))
	})
}

func TestTryWithLock(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	holder := newTestLocker(t, client)
	acquired, _ := holder.TryLock(ctx, "busy", time.Minute)
	require.True(t, acquired)

	other := newTestLocker(t, client)
	called := false
	err := TryWithLock(ctx, other, "busy", time.Minute, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)

	require.NoError(t, TryWithLock(ctx, other, "free", time.Minute, func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestConcurrency(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
	)
	for i := 0; i < 10; i++ {
		locker := newTestLocker(t, client)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := locker.TryLock(ctx, "contended", time.Minute)
			if err == nil && ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, acquired.Load())
}

func TestOptions(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	locker := newTestLocker(t, client, WithOwnerID("instance-1"), WithKeyPrefix("questline:lock:"))
	assert.Equal(t, "instance-1", locker.OwnerID())

	acquired, err := locker.TryLock(ctx, "purge", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	val, err := mr.Get("questline:lock:purge")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(val, "instance-1:"), val)

	require.NoError(t, locker.Unlock(ctx, "purge"))
	holder, err := locker.Holder(ctx, "purge")
	require.NoError(t, err)
	assert.Empty(t, holder)
}
