package s3

import (
	"errors"
	"time"
)

var (
	ErrNilConfig          = errors.New("s3: config is nil")
	ErrNilLogger          = errors.New("s3: logger is nil")
	ErrNilAPI             = errors.New("s3: api client is nil")
	ErrEmptyBucket        = errors.New("s3: bucket is empty")
	ErrPartialCredentials = errors.New("s3: access_key and secret_key must be set together")
)

// Config 对象存储配置.
type Config struct {
	// Endpoint 为空时使用 AWS 按区域解析的默认端点
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Region   string `json:"region" yaml:"region" mapstructure:"region"`

	// AccessKey 和 SecretKey 都为空时走 AWS 默认凭证链（环境变量、共享配置、实例角色）
	AccessKey string `json:"access_key" yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`

	Bucket string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// UsePathStyle MinIO 等自建存储需要开启
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" mapstructure:"use_path_style"`

	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrEmptyBucket
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return ErrPartialCredentials
	}
	return nil
}

// ApplyDefaults 填充默认值.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Prefix == "" {
		c.Prefix = "sagas"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *Config) staticCredentials() bool {
	return c.AccessKey != ""
}
