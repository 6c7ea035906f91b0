package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/questline/logger"
)

var (
	ErrNilConfig = errors.New("redisstore: config is nil")
	ErrNilLogger = errors.New("redisstore: logger is nil")
	ErrEmptyAddr = errors.New("redisstore: addr is empty")
)

// Config Redis 连接配置，审计存储和分布式锁共用一个客户端.
//
// 一个地址时使用单节点客户端，多个地址时使用集群客户端，
// 设置 MasterName 时通过 Sentinel 连接.
type Config struct {
	Addrs      []string `json:"addrs" yaml:"addrs" mapstructure:"addrs"`
	MasterName string   `json:"master_name" yaml:"master_name" mapstructure:"master_name"`
	Username   string   `json:"username" yaml:"username" mapstructure:"username"`
	Password   string   `json:"password" yaml:"password" mapstructure:"password"`
	DB         int      `json:"db" yaml:"db" mapstructure:"db"`

	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// KeyPrefix 审计记录 key 前缀
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if !slices.ContainsFunc(c.Addrs, func(a string) bool { return a != "" }) {
		return ErrEmptyAddr
	}
	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	c.Addrs = slices.DeleteFunc(c.Addrs, func(a string) bool { return a == "" })
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

func (c *Config) options() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        c.Addrs,
		MasterName:   c.MasterName,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		MaxRetries:   c.MaxRetries,
	}
}

// NewClient 创建客户端，在 DialTimeout 内 Ping 不通时返回错误.
func NewClient(cfg *Config, log logger.Logger) (redis.UniversalClient, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	client := redis.NewUniversalClient(cfg.options())
	log = log.With(logger.Any("addrs", cfg.Addrs), logger.Int("db", cfg.DB))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Error("[Redis] 连接失败", logger.Err(err))
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}

	log.Debug("[Redis] 已连接", logger.Bool("sentinel", cfg.MasterName != ""))
	return client, nil
}
