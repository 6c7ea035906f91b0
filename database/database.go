// Package database 提供基于 GORM 的关系型数据库连接.
//
// 支持 MySQL、PostgreSQL 和 SQLite，SQL 日志经由 logger 输出，
// 开启 EnableTracing 后每条 SQL 都会生成 OpenTelemetry span.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/Tsukikage7/questline/logger"
)

// Database GORM 连接.
type Database struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config Config
	log    logger.Logger
}

// NewDatabase 打开连接并配置连接池，config 会被填充默认值.
func NewDatabase(config *Config, log logger.Logger) (*Database, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(config.dialector(), &gorm.Config{
		Logger: newGORMLogger(log, config.SlowThreshold, config.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", config.Driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	if config.EnableTracing {
		if err := gdb.Use(tracing.NewPlugin()); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("database: tracing plugin: %w", err)
		}
	}

	pool := config.Pool
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)

	log.Info("[Database] 已连接",
		logger.String("driver", config.Driver),
		logger.Int("max_open", pool.MaxOpen),
		logger.Bool("tracing", config.EnableTracing),
	)
	return &Database{db: gdb, sqlDB: sqlDB, config: *config, log: log}, nil
}

// MustNewDatabase 同 NewDatabase，失败时 panic.
func MustNewDatabase(config *Config, log logger.Logger) *Database {
	db, err := NewDatabase(config, log)
	if err != nil {
		panic(err)
	}
	return db
}

// GORM 返回底层 *gorm.DB.
func (d *Database) GORM() *gorm.DB { return d.db }

// WithContext 返回绑定 ctx 的会话，SQL span 挂在 ctx 的 span 之下.
func (d *Database) WithContext(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

// Migrate 按模型创建或更新表结构，SkipMigrate 时跳过.
func (d *Database) Migrate(models ...any) error {
	if d.config.SkipMigrate {
		d.log.Debug("[Database] 跳过表结构迁移")
		return nil
	}
	if err := d.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Ping 检查连接是否可用.
func (d *Database) Ping(ctx context.Context) error {
	return d.sqlDB.PingContext(ctx)
}

// Stats 连接池统计.
func (d *Database) Stats() sql.DBStats {
	return d.sqlDB.Stats()
}

// Close 关闭连接池.
func (d *Database) Close() error {
	return d.sqlDB.Close()
}
