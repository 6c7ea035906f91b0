package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tsukikage7/questline/saga"
)

var _ saga.MetricsRecorder = (*PrometheusCollector)(nil)

// PrometheusCollector 指标收集器，使用独立的 Registry.
type PrometheusCollector struct {
	config   Config
	registry *prometheus.Registry

	sagasTotal           *prometheus.CounterVec
	sagaDuration         *prometheus.HistogramVec
	stepsTotal           *prometheus.CounterVec
	stepDuration         *prometheus.HistogramVec
	stepAttempts         *prometheus.HistogramVec
	compensationsTotal   *prometheus.CounterVec
	compensationDuration *prometheus.HistogramVec

	eventsTotal *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// vecs 按子系统批量创建指标，并记录下来统一注册.
type vecs struct {
	namespace  string
	buckets    []float64
	collectors []prometheus.Collector
}

func (v *vecs) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: v.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	v.collectors = append(v.collectors, c)
	return c
}

func (v *vecs) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = v.buckets
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: v.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	v.collectors = append(v.collectors, h)
	return h
}

// NewPrometheus 创建指标收集器，cfg 会被填充默认值.
func NewPrometheus(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	cfg.ApplyDefaults()

	v := &vecs{namespace: cfg.Namespace, buckets: cfg.DurationBuckets}
	c := &PrometheusCollector{
		config:   *cfg,
		registry: prometheus.NewRegistry(),

		sagasTotal: v.counter("saga", "runs_total",
			"Finished saga runs by final status.", "saga_type", "status"),
		sagaDuration: v.histogram("saga", "run_duration_seconds",
			"Saga run duration.", nil, "saga_type", "status"),
		stepsTotal: v.counter("saga", "steps_total",
			"Saga step executions by outcome.", "saga_type", "step", "outcome"),
		stepDuration: v.histogram("saga", "step_duration_seconds",
			"Saga step duration including retries.", nil, "saga_type", "step"),
		stepAttempts: v.histogram("saga", "step_attempts",
			"Attempts per saga step execution.", []float64{1, 2, 3, 5, 10}, "saga_type", "step"),
		compensationsTotal: v.counter("saga", "compensations_total",
			"Compensation calls by result.", "saga_type", "step", "success"),
		compensationDuration: v.histogram("saga", "compensation_duration_seconds",
			"Compensation duration.", nil, "saga_type", "step"),

		eventsTotal: v.counter("events", "published_total",
			"Published saga events by transport and result.", "transport", "event", "success"),

		httpRequestsTotal: v.counter("http", "requests_total",
			"Admin HTTP requests.", "path", "method", "code"),
		httpRequestDuration: v.histogram("http", "request_duration_seconds",
			"Admin HTTP request duration.", nil, "path", "method"),
	}

	for _, col := range v.collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}
	return c, nil
}

// RecordStep 记录步骤执行，跳过的步骤只计数.
func (c *PrometheusCollector) RecordStep(sagaType, step, outcome string, attempts int, d time.Duration) {
	c.stepsTotal.WithLabelValues(sagaType, step, outcome).Inc()
	if outcome == saga.OutcomeSkipped {
		return
	}
	c.stepDuration.WithLabelValues(sagaType, step).Observe(d.Seconds())
	if attempts > 0 {
		c.stepAttempts.WithLabelValues(sagaType, step).Observe(float64(attempts))
	}
}

// RecordCompensation 记录补偿执行.
func (c *PrometheusCollector) RecordCompensation(sagaType, step string, success bool, d time.Duration) {
	c.compensationsTotal.WithLabelValues(sagaType, step, strconv.FormatBool(success)).Inc()
	c.compensationDuration.WithLabelValues(sagaType, step).Observe(d.Seconds())
}

// RecordSaga 记录 Saga 最终状态.
func (c *PrometheusCollector) RecordSaga(sagaType string, status saga.Status, d time.Duration) {
	c.sagasTotal.WithLabelValues(sagaType, status.String()).Inc()
	c.sagaDuration.WithLabelValues(sagaType, status.String()).Observe(d.Seconds())
}

// RecordEvent 记录事件发布.
func (c *PrometheusCollector) RecordEvent(transport, event string, success bool) {
	c.eventsTotal.WithLabelValues(transport, event, strconv.FormatBool(success)).Inc()
}

// Handler 返回抓取端点.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Path 抓取端点的路径.
func (c *PrometheusCollector) Path() string {
	return c.config.Path
}

// Registry 返回底层注册表.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}
