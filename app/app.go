// Package app 管理进程生命周期.
//
// Application 并发启动已注册的组件（HTTP 服务、调度器等）. 收到退出信号、
// 父 ctx 取消、调用 Stop 或任一组件启动失败时，按注册的相反顺序停止组件，
// 再按优先级执行清理任务.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Tsukikage7/questline/logger"
)

var (
	// ErrRunning Run 已在执行.
	ErrRunning = errors.New("app: already running")
	// ErrNilLogger 未设置日志记录器.
	ErrNilLogger = errors.New("app: logger is required")
)

// Component 受生命周期管理的组件.
//
// Start 可以阻塞到 ctx 取消，也可以启动后台任务后立即返回 nil.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type funcComponent struct {
	name        string
	start, stop func(ctx context.Context) error
}

func (c funcComponent) Name() string { return c.name }

func (c funcComponent) Start(ctx context.Context) error { return call(c.start, ctx) }

func (c funcComponent) Stop(ctx context.Context) error { return call(c.stop, ctx) }

func call(fn func(context.Context) error, ctx context.Context) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Func 用一对函数构造组件，任一函数可以为 nil.
func Func(name string, start, stop func(ctx context.Context) error) Component {
	return funcComponent{name: name, start: start, stop: stop}
}

// Application 应用.
type Application struct {
	opts *options

	mu         sync.Mutex
	components []Component
	cancel     context.CancelFunc
}

// New 创建应用.
func New(opts ...Option) (*Application, error) {
	o := newOptions(opts)
	if o.logger == nil {
		return nil, ErrNilLogger
	}
	return &Application{opts: o}, nil
}

// Use 注册组件.
func (a *Application) Use(components ...Component) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.components = append(a.components, components...)
	return a
}

// OnShutdown 追加清理任务，运行期间调用同样生效.
func (a *Application) OnShutdown(name string, fn CleanupFunc, priority int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts.cleanups = append(a.opts.cleanups, Cleanup{Name: name, Fn: fn, Priority: priority})
}

func (a *Application) Name() string    { return a.opts.name }
func (a *Application) Version() string { return a.opts.version }

// Stop 请求退出，Run 随后返回.
func (a *Application) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Run 启动全部组件并阻塞到退出.
//
// 组件启动失败时返回该错误，信号或 ctx 触发的正常退出返回 nil.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	components := slices.Clone(a.components)
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
	}()

	log := a.opts.logger.With(
		logger.String("app", a.opts.name),
		logger.String("version", a.opts.version),
	)

	for _, hook := range a.opts.beforeStart {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("app: before start: %w", err)
		}
	}

	if len(a.opts.signals) > 0 {
		var stopSignals context.CancelFunc
		ctx, stopSignals = signal.NotifyContext(ctx, a.opts.signals...)
		defer stopSignals()
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(components) == 0 {
		log.Warn("[App] 没有注册组件")
	}
	for _, c := range components {
		g.Go(func() error {
			log.Info("[App] 启动组件", logger.String("component", c.Name()))
			if err := c.Start(gctx); err != nil {
				return fmt.Errorf("%s: %w", c.Name(), err)
			}
			return nil
		})
	}
	log.Info("[App] 已启动", logger.Int("components", len(components)))

	<-gctx.Done()
	if cause := context.Cause(gctx); cause != nil && !errors.Is(cause, context.Canceled) {
		log.Error("[App] 组件失败，开始退出", logger.Err(cause))
	} else {
		log.Info("[App] 收到退出请求")
	}

	a.shutdown(log, components)
	return g.Wait()
}

func (a *Application) shutdown(log logger.Logger, components []Component) {
	log.Info("[App] 正在停止", logger.Duration("timeout", a.opts.gracefulTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	for _, c := range slices.Backward(components) {
		if err := c.Stop(ctx); err != nil {
			log.Error("[App] 组件停止失败", logger.String("component", c.Name()), logger.Err(err))
		}
	}

	a.runCleanups(ctx, log)

	for _, hook := range a.opts.afterStop {
		if err := hook(context.WithoutCancel(ctx)); err != nil {
			log.Error("[App] 停止后钩子失败", logger.Err(err))
		}
	}
	log.Info("[App] 已停止")
}

func (a *Application) runCleanups(ctx context.Context, log logger.Logger) {
	a.mu.Lock()
	cleanups := slices.Clone(a.opts.cleanups)
	a.mu.Unlock()

	slices.SortStableFunc(cleanups, func(x, y Cleanup) int {
		return cmp.Compare(x.Priority, y.Priority)
	})
	for _, c := range cleanups {
		if err := c.Fn(ctx); err != nil {
			log.Error("[App] 清理失败", logger.String("cleanup", c.Name), logger.Err(err))
			continue
		}
		log.Debug("[App] 清理完成", logger.String("cleanup", c.Name))
	}
}
