package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *PrometheusCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.Path(), nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHTTPMiddleware(t *testing.T) {
	collector, err := NewPrometheus(&Config{Namespace: "test"})
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	rec := httptest.NewRecorder()
	HTTPMiddleware(collector, "/sagas/{id}")(handler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sagas/123", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	body := scrape(t, collector)
	assert.Contains(t, body, "test_http_requests_total")
	assert.Contains(t, body, `path="/sagas/{id}"`)
	assert.Contains(t, body, `test_http_requests_total{code="200",method="get",path="/sagas/{id}"} 1`)
	assert.NotContains(t, body, `path="/sagas/123"`)
}

func TestHTTPMiddleware_WithError(t *testing.T) {
	collector, err := NewPrometheus(&Config{Namespace: "test"})
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	HTTPMiddleware(collector, "")(handler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	body := scrape(t, collector)
	assert.Contains(t, body, `path="/missing"`)
	assert.Contains(t, body, `code="404"`)
}
