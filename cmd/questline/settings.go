package main

import (
	"fmt"
	"time"

	"github.com/Tsukikage7/questline/database"
	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/messaging"
	"github.com/Tsukikage7/questline/metrics"
	"github.com/Tsukikage7/questline/server"
	"github.com/Tsukikage7/questline/storage/mongodb"
	"github.com/Tsukikage7/questline/storage/redisstore"
	"github.com/Tsukikage7/questline/storage/s3"
	"github.com/Tsukikage7/questline/tracing"
)

// 审计存储类型.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
	StoreMongo  = "mongo"
	StoreS3     = "s3"
)

// 事件投递方式.
const (
	EventsBus      = "bus"
	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
)

// Settings 进程配置.
type Settings struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Version string `json:"version" yaml:"version" mapstructure:"version"`

	Logger    logger.Config     `json:"logger" yaml:"logger" mapstructure:"logger"`
	Tracing   tracing.Config    `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Metrics   metrics.Config    `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Admin     AdminSettings     `json:"admin" yaml:"admin" mapstructure:"admin"`
	Saga      SagaSettings      `json:"saga" yaml:"saga" mapstructure:"saga"`
	Store     StoreSettings     `json:"store" yaml:"store" mapstructure:"store"`
	Events    EventSettings     `json:"events" yaml:"events" mapstructure:"events"`
	Redis     redisstore.Config `json:"redis" yaml:"redis" mapstructure:"redis"`
	Scheduler SchedulerSettings `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
	Demo      DemoSettings      `json:"demo" yaml:"demo" mapstructure:"demo"`
}

// AdminSettings 管理接口配置.
type AdminSettings struct {
	server.HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// ListLimit 和 MaxListLimit 控制 GET /sagas 的默认条数和上限
	ListLimit    int `json:"list_limit" yaml:"list_limit" mapstructure:"list_limit"`
	MaxListLimit int `json:"max_list_limit" yaml:"max_list_limit" mapstructure:"max_list_limit"`
}

// SagaSettings 编排器配置.
type SagaSettings struct {
	// FailedEvents 失败时是否发布 saga.failed
	FailedEvents bool `json:"failed_events" yaml:"failed_events" mapstructure:"failed_events"`
}

// StoreSettings 审计存储配置.
type StoreSettings struct {
	// Type memory, redis, sql, mongo, s3
	Type     string          `json:"type" yaml:"type" mapstructure:"type"`
	SQL      database.Config `json:"sql" yaml:"sql" mapstructure:"sql"`
	Mongo    mongodb.Config  `json:"mongo" yaml:"mongo" mapstructure:"mongo"`
	S3       s3.Config       `json:"s3" yaml:"s3" mapstructure:"s3"`
	// Retention 终态记录保留时长，0 表示不清理
	Retention time.Duration `json:"retention" yaml:"retention" mapstructure:"retention"`
}

// EventSettings 事件投递配置.
type EventSettings struct {
	// Type bus, kafka, rabbitmq
	Type      string           `json:"type" yaml:"type" mapstructure:"type"`
	Async     int              `json:"async" yaml:"async" mapstructure:"async"`
	Messaging messaging.Config `json:"messaging" yaml:"messaging" mapstructure:"messaging"`
}

// SchedulerSettings 定时任务配置.
type SchedulerSettings struct {
	// PurgeSchedule 审计清理的 cron 表达式，为空时不注册
	PurgeSchedule string `json:"purge_schedule" yaml:"purge_schedule" mapstructure:"purge_schedule"`
	// Distributed 是否通过 Redis 锁保证多实例单次执行
	Distributed bool `json:"distributed" yaml:"distributed" mapstructure:"distributed"`
}

// DemoSettings 启动时执行的示例任务.
type DemoSettings struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Users 每个用户执行一次成功流程和一次补偿流程
	Users int `json:"users" yaml:"users" mapstructure:"users"`
}

// ApplyDefaults 应用默认值.
func (s *Settings) ApplyDefaults() {
	if s.Name == "" {
		s.Name = "questline"
	}
	if s.Version == "" {
		s.Version = "dev"
	}
	if s.Logger.ServiceName == "" {
		s.Logger.ServiceName = s.Name
	}
	s.Logger.ApplyDefaults()

	s.Metrics.ApplyDefaults()
	s.Admin.ApplyDefaults()
	if s.Store.Type == "" {
		s.Store.Type = StoreMemory
	}
	if s.Events.Type == "" {
		s.Events.Type = EventsBus
	}
	if s.Demo.Users <= 0 {
		s.Demo.Users = 1
	}
}

// Validate 验证配置.
func (s *Settings) Validate() error {
	if err := s.Logger.Validate(); err != nil {
		return err
	}

	switch s.Store.Type {
	case StoreMemory:
	case StoreRedis:
		if err := s.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	case StoreSQL:
		if err := s.Store.SQL.Validate(); err != nil {
			return fmt.Errorf("store.sql: %w", err)
		}
	case StoreMongo:
		if err := s.Store.Mongo.Validate(); err != nil {
			return fmt.Errorf("store.mongo: %w", err)
		}
	case StoreS3:
		if err := s.Store.S3.Validate(); err != nil {
			return fmt.Errorf("store.s3: %w", err)
		}
	default:
		return fmt.Errorf("store.type: unsupported %q", s.Store.Type)
	}

	switch s.Events.Type {
	case EventsBus:
	case EventsKafka, EventsRabbitMQ:
		cfg := s.Events.Messaging
		cfg.Type = s.Events.Type
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("events.messaging: %w", err)
		}
	default:
		return fmt.Errorf("events.type: unsupported %q", s.Events.Type)
	}

	if s.Scheduler.Distributed {
		if err := s.Redis.Validate(); err != nil {
			return fmt.Errorf("scheduler.distributed needs redis: %w", err)
		}
	}
	return nil
}
