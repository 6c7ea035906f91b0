// Package sqlstore 提供基于关系型数据库的 Saga 审计存储.
//
// 表结构由 database.Database.Migrate 创建，步骤结果和执行日志以 JSON 保存.
package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tsukikage7/questline/database"
	"github.com/Tsukikage7/questline/saga"
)

// ErrNilDatabase 数据库为空.
var ErrNilDatabase = errors.New("sqlstore: database is nil")

// sagaRecord saga_records 表.
type sagaRecord struct {
	ID            string            `gorm:"primaryKey;size:64"`
	Type          string            `gorm:"size:128;index"`
	ExecutorID    string            `gorm:"size:128"`
	Status        string            `gorm:"size:32;index:idx_saga_status_started,priority:1"`
	FailureReason string            `gorm:"type:text"`
	FailureError  string            `gorm:"type:text"`
	Steps         []saga.StepRecord `gorm:"type:text;serializer:json"`
	Log           []saga.LogRecord  `gorm:"type:text;serializer:json"`
	StartedAt     time.Time         `gorm:"index:idx_saga_status_started,priority:2"`
	CompletedAt   *time.Time        `gorm:"index"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime:false"`
}

func (sagaRecord) TableName() string { return "saga_records" }

// Store SQL 审计存储.
type Store struct {
	db *database.Database
}

var (
	_ saga.Store  = (*Store)(nil)
	_ saga.Purger = (*Store)(nil)
)

// New 创建 SQL 审计存储并迁移表结构.
func New(db *database.Database) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if err := db.Migrate(&sagaRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save 保存记录，相同 ID 覆盖.
func (s *Store) Save(ctx context.Context, rec *saga.Record) error {
	row := toRow(rec)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// Get 获取记录.
func (s *Store) Get(ctx context.Context, id string) (*saga.Record, error) {
	var row sagaRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, saga.ErrSagaNotFound
		}
		return nil, err
	}
	return fromRow(&row), nil
}

// Delete 删除记录.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&sagaRecord{}).Error
}

// List 按开始时间倒序列出指定状态的记录.
func (s *Store) List(ctx context.Context, status saga.Status, limit int) ([]*saga.Record, error) {
	q := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []sagaRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*saga.Record, 0, len(rows))
	for i := range rows {
		records = append(records, fromRow(&rows[i]))
	}
	return records, nil
}

// Purge 删除结束时间早于 before 的终态记录，返回删除数量.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	terminal := []string{
		string(saga.StatusCompleted),
		string(saga.StatusCompensated),
		string(saga.StatusFailed),
	}
	res := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at IS NOT NULL AND completed_at < ?", terminal, before.UTC()).
		Delete(&sagaRecord{})
	return res.RowsAffected, res.Error
}

// toRow 时间统一转换为 UTC，保证不同驱动下的比较和排序一致.
func toRow(rec *saga.Record) sagaRecord {
	var completedAt *time.Time
	if rec.CompletedAt != nil {
		t := rec.CompletedAt.UTC()
		completedAt = &t
	}
	return sagaRecord{
		ID:            rec.ID,
		Type:          rec.Type,
		ExecutorID:    rec.ExecutorID,
		Status:        string(rec.Status),
		FailureReason: rec.FailureReason,
		FailureError:  rec.FailureError,
		Steps:         rec.Steps,
		Log:           rec.Log,
		StartedAt:     rec.StartedAt.UTC(),
		CompletedAt:   completedAt,
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
}

func fromRow(row *sagaRecord) *saga.Record {
	return &saga.Record{
		ID:            row.ID,
		Type:          row.Type,
		ExecutorID:    row.ExecutorID,
		Status:        saga.Status(row.Status),
		FailureReason: row.FailureReason,
		FailureError:  row.FailureError,
		Steps:         row.Steps,
		Log:           row.Log,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
