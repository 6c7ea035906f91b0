package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger 的 base 用于 With，direct 和 sugar 各自跳过包装层的调用栈.
type zapLogger struct {
	base   *zap.Logger
	direct *zap.Logger
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
	files  []*os.File
}

func (z *zapLogger) derive(l *zap.Logger) *zapLogger {
	return &zapLogger{
		base:   l,
		direct: l.WithOptions(zap.AddCallerSkip(2)),
		sugar:  l.WithOptions(zap.AddCallerSkip(1)).Sugar(),
		level:  z.level,
		files:  z.files,
	}
}

// newZapLogger w 不为空时只写入 w.
func newZapLogger(config *Config, w io.Writer) (*zapLogger, error) {
	lv, err := config.zapLevel()
	if err != nil {
		return nil, invalid("level", "%v", err)
	}
	z := &zapLogger{level: zap.NewAtomicLevelAt(lv)}

	var sinks []zapcore.WriteSyncer
	switch {
	case w != nil:
		sinks = append(sinks, zapcore.AddSync(w))
	default:
		if config.writesFile() {
			f, err := openLogFile(config.LogFile)
			if err != nil {
				return nil, err
			}
			z.files = append(z.files, f)
			sinks = append(sinks, zapcore.Lock(f))
		}
		if config.writesConsole() {
			sinks = append(sinks, zapcore.Lock(os.Stdout))
		}
	}

	core := zapcore.NewCore(newEncoder(config), zapcore.NewMultiWriteSyncer(sinks...), z.level)

	opts := []zap.Option{zap.WithCaller(config.EnableCaller)}
	if config.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return z.derive(zap.New(core, opts...).With(zap.String("service", config.ServiceName))), nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, invalid("log_file", "创建目录失败: %v", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, invalid("log_file", "打开文件失败: %v", err)
	}
	return f, nil
}

func newEncoder(config *Config) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "msg"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(config.TimeLayout)
	ec.EncodeDuration = zapcore.StringDurationEncoder

	if strings.EqualFold(config.Format, FormatConsole) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

func (z *zapLogger) Debug(args ...any)                 { z.log(zapcore.DebugLevel, args) }
func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(args ...any)                  { z.log(zapcore.InfoLevel, args) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(args ...any)                  { z.log(zapcore.WarnLevel, args) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(args ...any)                 { z.log(zapcore.ErrorLevel, args) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }

// log 把 Field 参数拆成结构化字段，其余参数作为消息.
func (z *zapLogger) log(lv zapcore.Level, args []any) {
	if !z.level.Enabled(lv) {
		return
	}
	var fields []zap.Field
	msg := make([]any, 0, len(args))
	for _, a := range args {
		if f, ok := a.(Field); ok {
			fields = append(fields, f.zap())
		} else {
			msg = append(msg, a)
		}
	}
	if ce := z.direct.Check(lv, fmt.Sprint(msg...)); ce != nil {
		ce.Write(fields...)
	}
}

func (z *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zf = append(zf, f.zap())
	}
	return z.derive(z.base.With(zf...))
}

// WithContext 附加 span 的 traceId/spanId 和 ContextWithFields 放入的字段.
func (z *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return z
	}
	fields := FieldsFromContext(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields[:len(fields):len(fields)],
			String("traceId", sc.TraceID().String()),
			String("spanId", sc.SpanID().String()),
		)
	}
	return z.With(fields...)
}

func (z *zapLogger) Sync() error {
	return z.base.Sync()
}

// Close 刷新缓冲并关闭日志文件. stdout 的 Sync 错误被忽略.
func (z *zapLogger) Close() error {
	_ = z.base.Sync()
	var firstErr error
	for _, f := range z.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f Field) zap() zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	case fmt.Stringer:
		return zap.Stringer(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}
