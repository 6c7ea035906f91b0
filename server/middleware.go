package server

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/questline/logger"
)

const instrumentation = "github.com/Tsukikage7/questline/server"

var errInternal = errors.New("internal error")

// Middleware HTTP 中间件.
type Middleware func(http.Handler) http.Handler

// Chain 组合中间件，mws[0] 在最外层.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range slices.Backward(mws) {
		h = mw(h)
	}
	return h
}

// Recover 把 handler 的 panic 转为 500 响应并记录堆栈.
//
// http.ErrAbortHandler 原样抛出，由 net/http 中断连接.
func Recover(log logger.Logger) Middleware {
	if log == nil {
		log = logger.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				switch {
				case p == nil:
					return
				case p == http.ErrAbortHandler:
					panic(p)
				}
				log.WithContext(r.Context()).Error("[HTTP] panic recovered",
					logger.String("panic", fmt.Sprint(p)),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, errInternal)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Trace 为每个请求创建 server span，上游的 traceparent 作为父 span.
//
// span 名称为 "METHOD pattern"，路径参数不进入名称.
func Trace(tp trace.TracerProvider, pattern string) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentation)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+pattern,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(pattern),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))

			code := sw.code()
			span.SetAttributes(semconv.HTTPResponseStatusCode(code))
			if code >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(code))
			}
		})
	}
}

// statusWriter 记录写出的状态码，未显式写出时视为 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
