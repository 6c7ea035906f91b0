package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tsukikage7/questline/lock"
	"github.com/Tsukikage7/questline/logger"
)

// Option 调度器选项.
type Option func(*settings)

type settings struct {
	log      logger.Logger
	locker   lock.Locker
	timeout  time.Duration
	lockTTL  time.Duration
	seconds  bool
	location *time.Location
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithLocker 设置分布式锁，只作用于 Distributed 任务.
func WithLocker(l lock.Locker) Option {
	return func(s *settings) { s.locker = l }
}

// WithDefaultTimeout 未设置超时的任务使用该值，默认 5 分钟.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLockTTL 分布式锁的最短过期时间，默认 10 分钟.
func WithLockTTL(d time.Duration) Option {
	return func(s *settings) { s.lockTTL = d }
}

// WithSeconds 是否接受带秒字段的表达式，默认开启.
//
// 开启后秒字段可省略，五段和六段表达式都合法.
func WithSeconds(enabled bool) Option {
	return func(s *settings) { s.seconds = enabled }
}

// WithLocation 设置时区，默认 time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) { s.location = loc }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		timeout:  5 * time.Minute,
		lockTTL:  10 * time.Minute,
		seconds:  true,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.location == nil {
		s.location = time.Local
	}
	return s
}

func (s *settings) parser() cron.Parser {
	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if s.seconds {
		fields |= cron.SecondOptional
	}
	return cron.NewParser(fields)
}

// cronLogger 让 cron 内部日志走 logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("[Scheduler] "+msg, logger.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("[Scheduler] "+msg, logger.Err(err), logger.Any("details", keysAndValues))
}
