package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// 值与令牌一致才操作，过期后被别人拿走的锁不会被误删或误续期.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])`)
)

// Redis 基于 SET NX PX 的分布式锁.
//
// 每次获取生成一个令牌 "<owner>:<uuid>" 作为键值，释放和续期时比对令牌.
// 同一个 Redis 实例对同一键只记录一次持有.
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	owner      string
	wait       time.Duration
	maxRetries int

	mu     sync.Mutex
	tokens map[string]string
}

var _ Locker = (*Redis)(nil)

// RedisOption Redis 锁选项.
type RedisOption func(*Redis)

// WithKeyPrefix 键前缀，默认 "lock:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithOwnerID 实例标识，默认随机 UUID，出现在令牌前缀中便于排查.
func WithOwnerID(id string) RedisOption {
	return func(r *Redis) { r.owner = id }
}

// WithRetryWait Lock 两次尝试的间隔，默认 100ms.
func WithRetryWait(wait time.Duration) RedisOption {
	return func(r *Redis) { r.wait = wait }
}

// WithMaxRetries Lock 最多尝试的次数，0 表示直到 ctx 结束.
func WithMaxRetries(n int) RedisOption {
	return func(r *Redis) { r.maxRetries = n }
}

// NewRedis 创建 Redis 分布式锁.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{
		client: client,
		prefix: "lock:",
		owner:  uuid.NewString(),
		wait:   100 * time.Millisecond,
		tokens: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

func (r *Redis) token(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[name]
	return t, ok
}

func (r *Redis) forget(name string) {
	r.mu.Lock()
	delete(r.tokens, name)
	r.mu.Unlock()
}

// TryLock 尝试获取锁，被占用时返回 false.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := r.owner + ":" + uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

// Lock 按固定间隔重试获取锁.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) error {
	backoff := retry.NewConstant(r.wait)
	if r.maxRetries > 0 {
		backoff = retry.WithMaxRetries(uint64(r.maxRetries-1), backoff)
	}
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := r.TryLock(ctx, key, ttl)
		switch {
		case err != nil:
			return err
		case !ok:
			return retry.RetryableError(ErrLockNotAcquired)
		}
		return nil
	})
}

// Unlock 释放本实例持有的锁.
func (r *Redis) Unlock(ctx context.Context, key string) error {
	token, ok := r.token(key)
	if !ok {
		return ErrLockNotHeld
	}
	n, err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, token).Int64()
	if err != nil {
		return err
	}
	r.forget(key)
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 把锁的过期时间重置为 ttl，锁已丢失时返回 ErrLockNotHeld.
func (r *Redis) Extend(ctx context.Context, key string, ttl time.Duration) error {
	token, ok := r.token(key)
	if !ok {
		return ErrLockNotHeld
	}
	n, err := refreshScript.Run(ctx, r.client, []string{r.key(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		r.forget(key)
		return ErrLockNotHeld
	}
	return nil
}

// OwnerID 实例标识.
func (r *Redis) OwnerID() string {
	return r.owner
}

// IsHeld 本实例是否认为自己持有该锁，不访问 Redis.
func (r *Redis) IsHeld(key string) bool {
	_, ok := r.token(key)
	return ok
}

// Holder 查询当前持有该锁的令牌，无人持有时返回空串.
func (r *Redis) Holder(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
