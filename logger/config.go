package logger

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig 日志配置无效.
var ErrInvalidConfig = errors.New("logger: 配置无效")

// Config 日志配置.
type Config struct {
	// Type zap 或 nop
	Type        string `json:"type" yaml:"type" mapstructure:"type"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Format      string `json:"format" yaml:"format" mapstructure:"format"`

	// Output console、file 或 both，后两者需要 LogFile
	Output  string `json:"output" yaml:"output" mapstructure:"output"`
	LogFile string `json:"log_file" yaml:"log_file" mapstructure:"log_file"`

	EnableCaller     bool `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace" yaml:"enable_stacktrace" mapstructure:"enable_stacktrace"`

	// TimeLayout 默认 "2006-01-02 15:04:05.000"
	TimeLayout string `json:"time_layout" yaml:"time_layout" mapstructure:"time_layout"`
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}

// Validate 验证配置，空字段视为使用默认值.
func (c *Config) Validate() error {
	if c == nil {
		return invalid("config", "为空")
	}
	switch strings.ToLower(c.Type) {
	case "", TypeZap, TypeNop:
	default:
		return invalid("type", "不支持 %q", c.Type)
	}
	if c.Level != "" {
		if _, err := c.zapLevel(); err != nil {
			return invalid("level", "%v", err)
		}
	}
	switch strings.ToLower(c.Format) {
	case "", FormatJSON, FormatConsole:
	default:
		return invalid("format", "不支持 %q", c.Format)
	}
	switch strings.ToLower(c.Output) {
	case "", OutputConsole:
	case OutputFile, OutputBoth:
		if c.LogFile == "" {
			return invalid("log_file", "output 为 %s 时必填", c.Output)
		}
	default:
		return invalid("output", "不支持 %q", c.Output)
	}
	return nil
}

// ApplyDefaults 填充默认值.
func (c *Config) ApplyDefaults() {
	c.Type = strings.ToLower(c.Type)
	if c.Type == "" {
		c.Type = TypeZap
	}
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == "" {
		c.Output = OutputConsole
	}
	if c.ServiceName == "" {
		c.ServiceName = "questline"
	}
	if c.TimeLayout == "" {
		c.TimeLayout = "2006-01-02 15:04:05.000"
	}
}

func (c *Config) zapLevel() (zapcore.Level, error) {
	if c.Level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(c.Level))
}

func (c *Config) writesFile() bool {
	o := strings.ToLower(c.Output)
	return o == OutputFile || o == OutputBoth
}

func (c *Config) writesConsole() bool {
	o := strings.ToLower(c.Output)
	return o == OutputConsole || o == OutputBoth
}

// NewDevConfig 本地开发用配置：debug 级别、彩色控制台输出、带调用位置.
func NewDevConfig() *Config {
	return &Config{
		Level:        LevelDebug,
		Format:       FormatConsole,
		EnableCaller: true,
	}
}
