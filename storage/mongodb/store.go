package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Tsukikage7/questline/saga"
)

// 索引名.
const (
	IndexStatusStarted = "status_started_at"
	IndexCompletedTTL  = "completed_at_ttl"
)

// StoreOption 存储选项.
type StoreOption func(*Store)

// WithRetention 终态记录保留时长，EnsureIndexes 会据此创建 completed_at 上的 TTL 索引.
func WithRetention(d time.Duration) StoreOption {
	return func(s *Store) { s.retention = d }
}

// Store MongoDB 审计存储.
//
// 保留时长同时有两条清理路径：服务端 TTL 索引和调度器调用的 Purge.
type Store struct {
	coll      Collection
	retention time.Duration
}

var (
	_ saga.Store  = (*Store)(nil)
	_ saga.Purger = (*Store)(nil)
)

// NewStore 创建审计存储.
func NewStore(coll Collection, opts ...StoreOption) (*Store, error) {
	if coll == nil {
		return nil, ErrNilCollection
	}
	s := &Store{coll: coll}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureIndexes 创建 (status, started_at desc) 复合索引，配置了保留时长时再创建 TTL 索引.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: -1}},
		Options: options.Index().SetName(IndexStatusStarted),
	}}
	if s.retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().
				SetName(IndexCompletedTTL).
				SetSparse(true).
				SetExpireAfterSeconds(int32(s.retention / time.Second)),
		})
	}
	return s.coll.CreateIndexes(ctx, models)
}

// Save 写入记录，相同 ID 整体覆盖.
func (s *Store) Save(ctx context.Context, rec *saga.Record) error {
	return s.coll.UpsertByID(ctx, rec.ID, rec)
}

// Get 读取记录.
func (s *Store) Get(ctx context.Context, id string) (*saga.Record, error) {
	var rec saga.Record
	err := s.coll.FindByID(ctx, id, &rec)
	if errors.Is(err, ErrNoDocuments) {
		return nil, saga.ErrSagaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete 删除记录，不存在时不报错.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.coll.DeleteByID(ctx, id)
	return err
}

// List 按开始时间倒序列出指定状态的记录.
func (s *Store) List(ctx context.Context, status saga.Status, limit int) ([]*saga.Record, error) {
	var records []*saga.Record
	err := s.coll.FindAll(ctx,
		bson.M{"status": string(status)},
		Query{SortDesc: "started_at", Limit: int64(limit)},
		&records,
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Purge 删除结束时间早于 before 的终态记录.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.coll.DeleteMany(ctx, bson.M{
		"status":       bson.M{"$in": terminalStatuses()},
		"completed_at": bson.M{"$lt": before},
	})
}

func terminalStatuses() bson.A {
	return bson.A{
		string(saga.StatusCompleted),
		string(saga.StatusCompensated),
		string(saga.StatusFailed),
	}
}
