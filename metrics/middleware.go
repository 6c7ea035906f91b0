package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMiddleware 记录请求数和耗时.
//
// pattern 作为 path 标签，避免 /sagas/{id} 中的 ID 进入标签；为空时使用请求路径.
//
//	mux.Handle("GET /sagas/{id}", metrics.HTTPMiddleware(collector, "/sagas/{id}")(handler))
func HTTPMiddleware(c *PrometheusCollector, pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if pattern != "" {
			return c.instrument(pattern, next)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.instrument(r.URL.Path, next).ServeHTTP(w, r)
		})
	}
}

func (c *PrometheusCollector) instrument(path string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"path": path}
	return promhttp.InstrumentHandlerDuration(
		c.httpRequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(c.httpRequestsTotal.MustCurryWith(labels), next),
	)
}
