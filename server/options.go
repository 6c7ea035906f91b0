package server

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/metrics"
)

// HTTPConfig HTTP 监听配置，零值字段使用默认值.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// ApplyDefaults 填充默认值.
func (c *HTTPConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
}

// HTTPOption HTTP 服务器选项.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	name   string
	config HTTPConfig
	logger logger.Logger
}

// WithHTTPName 设置名称，用于日志和 app 组件名.
func WithHTTPName(name string) HTTPOption {
	return func(o *httpOptions) { o.name = name }
}

// WithHTTPConfig 整体替换监听配置.
func WithHTTPConfig(cfg HTTPConfig) HTTPOption {
	return func(o *httpOptions) {
		cfg.ApplyDefaults()
		o.config = cfg
	}
}

// WithHTTPAddr 只修改监听地址，传空串会使 NewHTTP 失败.
func WithHTTPAddr(addr string) HTTPOption {
	return func(o *httpOptions) { o.config.Addr = addr }
}

// WithHTTPLogger 设置日志记录器.
func WithHTTPLogger(log logger.Logger) HTTPOption {
	return func(o *httpOptions) { o.logger = log }
}

// AdminOption 管理接口选项.
type AdminOption func(*adminOptions)

type adminOptions struct {
	collector    *metrics.PrometheusCollector
	tracer       trace.TracerProvider
	logger       logger.Logger
	defaultLimit int
	maxLimit     int
}

// WithMetrics 挂载指标端点，并为每条管理路由记录请求指标.
func WithMetrics(c *metrics.PrometheusCollector) AdminOption {
	return func(o *adminOptions) { o.collector = c }
}

// WithTracerProvider 为管理路由创建服务端 span.
func WithTracerProvider(tp trace.TracerProvider) AdminOption {
	return func(o *adminOptions) { o.tracer = tp }
}

// WithAdminLogger 设置日志记录器，zap 实现时同时开放 /loglevel.
func WithAdminLogger(log logger.Logger) AdminOption {
	return func(o *adminOptions) { o.logger = log }
}

// WithListLimit 设置列表默认条数和上限，非正数保持默认的 50 和 500.
func WithListLimit(def, limit int) AdminOption {
	return func(o *adminOptions) {
		if def > 0 {
			o.defaultLimit = def
		}
		if limit > 0 {
			o.maxLimit = limit
		}
	}
}
