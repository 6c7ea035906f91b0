// Package logger 提供基于 zap 的结构化日志.
//
// Debug、Info、Warn、Error 的参数中 Field 作为结构化字段输出，其余拼接为消息：
//
//	log.Warn("[Saga] 可选步骤失败", logger.Step("notify"), logger.Attempt(2))
//
// WithContext 会附带 ctx 中的 OpenTelemetry traceId/spanId 以及 ContextWithFields 放入的字段，
// 编排器据此把 sagaId 传给存储、消息等下游组件的日志.
package logger

import (
	"context"
	"io"
	"net/http"
	"slices"
)

const (
	TypeZap = "zap"
	TypeNop = "nop"

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatJSON    = "json"
	FormatConsole = "console"

	OutputConsole = "console"
	OutputFile    = "file"
	OutputBoth    = "both"
)

// Logger 日志记录器.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Sync() error
	Close() error
}

type fieldsKey struct{}

// ContextWithFields 返回携带附加日志字段的 ctx，与 ctx 中已有字段合并.
func ContextWithFields(ctx context.Context, fields ...Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, fieldsKey{}, append(slices.Clip(FieldsFromContext(ctx)), fields...))
}

// FieldsFromContext 返回 ContextWithFields 放入的字段.
func FieldsFromContext(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]Field)
	return fields
}

// NewLogger 按配置创建 logger，config 会被填充默认值.
func NewLogger(config *Config) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	if config.Type == TypeNop {
		return NewNop(), nil
	}
	return newZapLogger(config, nil)
}

// NewWithWriter 创建只写入 w 的 zap logger，Output 和 LogFile 被忽略.
func NewWithWriter(config *Config, w io.Writer) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	return newZapLogger(config, w)
}

// LevelHandler 返回可在运行时查看和修改日志级别的 HTTP handler.
//
// GET 返回 {"level":"info"}，PUT 同样格式的请求体修改级别.
// 非 zap 实现返回 false.
func LevelHandler(l Logger) (http.Handler, bool) {
	z, ok := l.(*zapLogger)
	if !ok {
		return nil, false
	}
	return z.level, true
}
