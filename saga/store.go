package saga

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store Saga 审计记录存储接口.
//
// 记录只用于审计和排查，编排器不会读取它来恢复运行.
type Store interface {
	// Save 保存记录，相同 ID 覆盖.
	Save(ctx context.Context, rec *Record) error

	// Get 获取记录，不存在时返回 ErrSagaNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete 删除记录.
	Delete(ctx context.Context, id string) error

	// List 按开始时间倒序列出指定状态的记录，limit <= 0 表示不限制.
	List(ctx context.Context, status Status, limit int) ([]*Record, error)
}

// Purger 可按结束时间清理终态记录的存储.
type Purger interface {
	// Purge 删除结束时间早于 before 的终态记录，返回删除数量.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// MemoryStore 基于内存的审计存储.
//
// 适用于单机部署或测试场景，过期记录通过 Purge 清理.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Record
}

// NewMemoryStore 创建内存存储.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Record)}
}

// Save 保存记录.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ID] = rec.Clone()
	return nil
}

// Get 获取记录.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return rec.Clone(), nil
}

// Delete 删除记录.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List 列出指定状态的记录.
func (s *MemoryStore) List(_ context.Context, status Status, limit int) ([]*Record, error) {
	s.mu.RLock()
	var result []*Record
	for _, rec := range s.data {
		if rec.Status == status {
			result = append(result, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len 返回记录数量.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Purge 删除结束时间早于 before 的终态记录，返回删除数量.
func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.data {
		if rec.Status.IsTerminal() && rec.CompletedAt != nil && rec.CompletedAt.Before(before) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

// NopStore 空存储，不保存任何记录.
type NopStore struct{}

// NewNopStore 创建空存储.
func NewNopStore() *NopStore {
	return &NopStore{}
}

func (s *NopStore) Save(context.Context, *Record) error { return nil }

func (s *NopStore) Get(context.Context, string) (*Record, error) { return nil, ErrSagaNotFound }

func (s *NopStore) Delete(context.Context, string) error { return nil }

func (s *NopStore) List(context.Context, Status, int) ([]*Record, error) { return nil, nil }
