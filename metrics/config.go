// Package metrics 以 Prometheus 格式暴露 Saga 执行、事件发布和管理接口的指标.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("metrics: 配置为空")
	// ErrRegisterMetric 注册指标失败.
	ErrRegisterMetric = errors.New("metrics: 注册指标失败")
)

// Config 指标配置.
type Config struct {
	// Addr 独立指标服务的监听地址，为空时只挂载在管理接口上
	Addr      string `json:"addr" yaml:"addr" mapstructure:"addr"`
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`

	// DurationBuckets 耗时直方图的桶，单位秒
	DurationBuckets []float64 `json:"duration_buckets" yaml:"duration_buckets" mapstructure:"duration_buckets"`
}

// ApplyDefaults 应用默认值，Addr 保持原样.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.Namespace == "" {
		c.Namespace = "questline"
	}
	if len(c.DurationBuckets) == 0 {
		c.DurationBuckets = defaultBuckets()
	}
}

// defaultBuckets 从 5ms 到约 40s.
func defaultBuckets() []float64 {
	return prometheus.ExponentialBuckets(0.005, 2, 14)
}
