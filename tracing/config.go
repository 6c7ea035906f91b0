// Package tracing 配置 OpenTelemetry TracerProvider，并提供 Saga 使用的 tracer.
package tracing

import (
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("tracing: 配置为空")
	// ErrEmptyServiceName 服务名称为空.
	ErrEmptyServiceName = errors.New("tracing: 服务名称为空")
	// ErrEmptyEndpoint 启用导出但未配置端点.
	ErrEmptyEndpoint = errors.New("tracing: OTLP端点为空")
	// ErrCreateExporter 创建导出器失败.
	ErrCreateExporter = errors.New("tracing: 创建OTLP导出器失败")
	// ErrCreateResource 创建资源失败.
	ErrCreateResource = errors.New("tracing: 创建资源失败")
)

// Config 链路追踪配置.
type Config struct {
	// Enabled 关闭时 span 只在进程内生成，不导出
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Endpoint OTLP HTTP 端点，https:// 前缀启用 TLS
	Endpoint string            `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Headers  map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
	// SamplingRate 根 span 的采样率，取值 (0, 1]
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`
	// Timeout 单次导出的超时
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults 应用默认值，越界的采样率按全采样处理.
func (c *Config) ApplyDefaults() {
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		c.SamplingRate = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return ErrEmptyEndpoint
	}
	return nil
}

func (c *Config) sampler() sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SamplingRate))
}

// exporterOptions otlptracehttp 的端点只接受 host:port.
func (c *Config) exporterOptions() []otlptracehttp.Option {
	endpoint, secure := strings.CutPrefix(c.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithTimeout(c.Timeout),
	}
	if !secure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
	}
	return opts
}
