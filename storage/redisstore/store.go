// Package redisstore 提供基于 Redis 的 Saga 审计存储.
//
// Key 名称规范:
//   - {prefix}:record:{id}        -> 审计记录 (String, JSON)
//   - {prefix}:status:{status}    -> 状态索引 (Sorted Set, score 为开始时间)
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/questline/saga"
)

// ErrNilClient Redis 客户端为空.
var ErrNilClient = errors.New("redisstore: client is nil")

var allStatuses = []saga.Status{
	saga.StatusStarted,
	saga.StatusProcessing,
	saga.StatusCompleted,
	saga.StatusFailed,
	saga.StatusCompensating,
	saga.StatusCompensated,
}

// Option Redis 存储配置选项.
type Option func(*Store)

// WithKeyPrefix 设置 Redis key 前缀.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.keyPrefix = prefix
	}
}

// WithTTL 设置终态记录的过期时间，0 表示永不过期.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// Store Redis 审计存储.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ saga.Store = (*Store)(nil)

// New 创建 Redis 审计存储.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	s := &Store{
		client:    client,
		keyPrefix: "saga",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) recordKey(id string) string {
	return fmt.Sprintf("%s:record:%s", s.keyPrefix, id)
}

func (s *Store) statusKey(status saga.Status) string {
	return fmt.Sprintf("%s:status:%s", s.keyPrefix, status)
}

// Save 保存记录并更新状态索引.
func (s *Store) Save(ctx context.Context, rec *saga.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore: encode record: %w", err)
	}

	var ttl time.Duration
	if rec.Status.IsTerminal() {
		ttl = s.ttl
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), data, ttl)
		for _, st := range allStatuses {
			if st != rec.Status {
				pipe.ZRem(ctx, s.statusKey(st), rec.ID)
			}
		}
		pipe.ZAdd(ctx, s.statusKey(rec.Status), redis.Z{
			Score:  float64(rec.StartedAt.UnixNano()),
			Member: rec.ID,
		})
		return nil
	})
	return err
}

// Get 获取记录.
func (s *Store) Get(ctx context.Context, id string) (*saga.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, saga.ErrSagaNotFound
		}
		return nil, err
	}
	return decode(data)
}

// Delete 删除记录及其索引.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(id))
		for _, st := range allStatuses {
			pipe.ZRem(ctx, s.statusKey(st), id)
		}
		return nil
	})
	return err
}

// List 按开始时间倒序列出指定状态的记录.
//
// 已过期的记录会从索引中移除.
func (s *Store) List(ctx context.Context, status saga.Status, limit int) ([]*saga.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*saga.Record, 0, len(values))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		rec, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, s.statusKey(status), expired...).Err()
	}
	return records, nil
}

func decode(data []byte) (*saga.Record, error) {
	var rec saga.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redisstore: decode record: %w", err)
	}
	return &rec, nil
}
