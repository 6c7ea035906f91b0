package app

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/Tsukikage7/questline/logger"
)

// Hook 启动前或停止后执行的钩子.
type Hook func(ctx context.Context) error

// CleanupFunc 清理函数，在组件全部停止后执行.
type CleanupFunc func(ctx context.Context) error

// Cleanup 清理任务，Priority 小的先执行，相同优先级按注册顺序.
type Cleanup struct {
	Name     string
	Fn       CleanupFunc
	Priority int
}

type options struct {
	name    string
	version string
	logger  logger.Logger

	beforeStart []Hook
	afterStop   []Hook
	cleanups    []Cleanup

	gracefulTimeout time.Duration
	signals         []os.Signal
}

// Option 应用选项.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		name:            "questline",
		version:         "dev",
		gracefulTimeout: 30 * time.Second,
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func Name(name string) Option {
	return func(o *options) { o.name = name }
}

func Version(version string) Option {
	return func(o *options) { o.version = version }
}

// Logger 必填.
func Logger(log logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// BeforeStart 任一钩子失败时不启动任何组件.
func BeforeStart(hook Hook) Option {
	return func(o *options) { o.beforeStart = append(o.beforeStart, hook) }
}

// AfterStop 在清理任务之后执行，失败只记录日志.
func AfterStop(hook Hook) Option {
	return func(o *options) { o.afterStop = append(o.afterStop, hook) }
}

// GracefulTimeout 停止组件和执行清理的总时限，默认 30 秒.
func GracefulTimeout(d time.Duration) Option {
	return func(o *options) { o.gracefulTimeout = d }
}

// Signals 触发退出的信号，默认 SIGINT 和 SIGTERM.
func Signals(signals ...os.Signal) Option {
	return func(o *options) { o.signals = signals }
}

// RegisterCleanup 注册清理任务.
func RegisterCleanup(name string, fn CleanupFunc, priority int) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, Cleanup{Name: name, Fn: fn, Priority: priority})
	}
}
