// Package lock 提供基于 Redis 的分布式锁.
//
// 多实例部署时用于保证维护任务（如审计记录清理）同一时间只在一个实例上执行.
//
//	locker, _ := lock.NewRedis(client, lock.WithKeyPrefix("questline:lock:"))
//	err := lock.TryWithLock(ctx, locker, "purge", time.Minute, func() error {
//	    return purge(ctx)
//	})
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNilClient Redis 客户端为空.
	ErrNilClient = errors.New("lock: redis client is nil")
	// ErrLockNotAcquired 锁被其他持有者占用.
	ErrLockNotAcquired = errors.New("lock: failed to acquire lock")
	// ErrLockNotHeld 释放或续期时锁已不属于当前持有者.
	ErrLockNotHeld = errors.New("lock: lock not held")
)

// Locker 分布式锁接口.
type Locker interface {
	// TryLock 尝试获取锁，已被持有时立即返回 false.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Lock 阻塞获取锁，直到成功、超过重试次数或 context 取消.
	Lock(ctx context.Context, key string, ttl time.Duration) error

	// Unlock 释放锁，只有持有者能释放.
	Unlock(ctx context.Context, key string) error

	// Extend 延长锁的过期时间.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

// WithLock 获取锁后执行 fn，结束后释放.
func WithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func() error) error {
	if err := locker.Lock(ctx, key, ttl); err != nil {
		return err
	}
	defer locker.Unlock(context.WithoutCancel(ctx), key)

	return fn()
}

// TryWithLock 非阻塞版本的 WithLock，锁被占用时返回 ErrLockNotAcquired.
func TryWithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func() error) error {
	acquired, err := locker.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockNotAcquired
	}
	defer locker.Unlock(context.WithoutCancel(ctx), key)

	return fn()
}
