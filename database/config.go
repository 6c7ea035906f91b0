package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// 支持的驱动类型，postgresql 和 sqlite3 为别名.
const (
	DriverMySQL      = "mysql"
	DriverPostgres   = "postgres"
	DriverPostgreSQL = "postgresql"
	DriverSQLite     = "sqlite"
	DriverSQLite3    = "sqlite3"
)

var (
	ErrNilConfig         = errors.New("database: 配置为空")
	ErrNilLogger         = errors.New("database: 日志记录器为空")
	ErrEmptyDriver       = errors.New("database: 驱动类型为空")
	ErrEmptyDSN          = errors.New("database: 连接字符串为空")
	ErrUnsupportedDriver = errors.New("database: 不支持的驱动类型")
)

var dialectors = map[string]func(dsn string) gorm.Dialector{
	DriverMySQL:      mysql.Open,
	DriverPostgres:   postgres.Open,
	DriverPostgreSQL: postgres.Open,
	DriverSQLite:     sqlite.Open,
	DriverSQLite3:    sqlite.Open,
}

// Config 数据库配置.
type Config struct {
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`
	DSN    string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// SkipMigrate 表结构由外部工具管理，Migrate 不做任何事
	SkipMigrate bool `json:"skip_migrate" yaml:"skip_migrate" mapstructure:"skip_migrate"`

	Pool PoolConfig `json:"pool" yaml:"pool" mapstructure:"pool"`

	// SlowThreshold 超过该耗时的 SQL 记为慢查询
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold" mapstructure:"slow_threshold"`
	// LogLevel silent、error、warn、info
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// EnableTracing 为每条 SQL 创建 span
	EnableTracing bool `json:"enable_tracing" yaml:"enable_tracing" mapstructure:"enable_tracing"`
}

// PoolConfig 连接池配置.
type PoolConfig struct {
	MaxOpen     int           `json:"max_open" yaml:"max_open" mapstructure:"max_open"`
	MaxIdle     int           `json:"max_idle" yaml:"max_idle" mapstructure:"max_idle"`
	MaxLifetime time.Duration `json:"max_lifetime" yaml:"max_lifetime" mapstructure:"max_lifetime"`
	MaxIdleTime time.Duration `json:"max_idle_time" yaml:"max_idle_time" mapstructure:"max_idle_time"`
}

// poolDefaults SQLite 只允许一个写连接.
func poolDefaults(driver string) PoolConfig {
	p := PoolConfig{MaxOpen: 20, MaxIdle: 5, MaxLifetime: time.Hour, MaxIdleTime: 10 * time.Minute}
	if driver == DriverSQLite || driver == DriverSQLite3 {
		p.MaxOpen, p.MaxIdle = 1, 1
	}
	return p
}

// merge 用 def 填充 p 中的零值.
func (p *PoolConfig) merge(def PoolConfig) {
	if p.MaxOpen == 0 {
		p.MaxOpen = def.MaxOpen
	}
	if p.MaxIdle == 0 {
		p.MaxIdle = def.MaxIdle
	}
	if p.MaxLifetime == 0 {
		p.MaxLifetime = def.MaxLifetime
	}
	if p.MaxIdleTime == 0 {
		p.MaxIdleTime = def.MaxIdleTime
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	switch {
	case c.Driver == "":
		return ErrEmptyDriver
	case c.DSN == "":
		return ErrEmptyDSN
	}
	if _, ok := dialectors[c.Driver]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, c.Driver)
	}
	return nil
}

// ApplyDefaults 应用默认值，连接池默认值与驱动相关.
func (c *Config) ApplyDefaults() {
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	c.Pool.merge(poolDefaults(c.Driver))
}

func (c *Config) dialector() gorm.Dialector {
	return dialectors[c.Driver](c.DSN)
}
