package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tsukikage7/questline/logger"
)

var logLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

// gormLogger 把 GORM 日志转发到 logger，SQL 以结构化字段输出.
type gormLogger struct {
	logger logger.Logger
	slow   time.Duration
	level  gormlogger.LogLevel
}

func newGORMLogger(log logger.Logger, slow time.Duration, level string) gormlogger.Interface {
	lv, ok := logLevels[level]
	if !ok {
		lv = gormlogger.Warn
	}
	return &gormLogger{logger: log, slow: slow, level: lv}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger.WithContext(ctx).Info("[Database] " + fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.WithContext(ctx).Warn("[Database] " + fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger.WithContext(ctx).Error("[Database] " + fmt.Sprintf(msg, data...))
	}
}

// Trace 每条 SQL 执行后调用. 失败记 Error，慢查询记 Warn，其余在 info 级别下记 Debug.
// 记录不存在属于正常查询结果，不视为失败.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	switch {
	case failed && l.level >= gormlogger.Error:
		l.sqlLogger(ctx, fc, elapsed).Error("[Database] SQL 执行失败", logger.Err(err))
	case slow && l.level >= gormlogger.Warn:
		l.sqlLogger(ctx, fc, elapsed).Warn("[Database] 慢查询", logger.Duration("threshold", l.slow))
	case l.level >= gormlogger.Info:
		l.sqlLogger(ctx, fc, elapsed).Debug("[Database] SQL")
	}
}

func (l *gormLogger) sqlLogger(ctx context.Context, fc func() (string, int64), elapsed time.Duration) logger.Logger {
	sql, rows := fc()
	return l.logger.WithContext(ctx).With(
		logger.String("sql", sql),
		logger.Int64("rows", rows),
		logger.Duration("elapsed", elapsed),
	)
}
