// Package scheduler 按 Cron 表达式执行维护任务，例如清理过期的 Saga 审计记录.
//
// 任务可以声明为单例（不重叠执行）或分布式（多实例间通过 lock.Locker 互斥），
// 失败时按固定间隔重试. 表达式在 Add 时解析，秒字段可选.
//
//	s, _ := scheduler.New(scheduler.WithLogger(log), scheduler.WithLocker(locker))
//	job, _ := scheduler.NewPurgeJob("0 0 * * * *", store, 7*24*time.Hour, log)
//	_ = s.Add(job)
//	_ = s.Start()
//	defer s.Shutdown(ctx)
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"

	"github.com/Tsukikage7/questline/lock"
	"github.com/Tsukikage7/questline/logger"
)

var (
	ErrJobNameEmpty    = errors.New("scheduler: job name is required")
	ErrScheduleEmpty   = errors.New("scheduler: schedule expression is required")
	ErrHandlerNil      = errors.New("scheduler: job handler is required")
	ErrScheduleInvalid = errors.New("scheduler: invalid schedule expression")
	ErrSchedulerClosed = errors.New("scheduler: scheduler is closed")
	ErrJobNotFound     = errors.New("scheduler: job not found")
	ErrJobExists       = errors.New("scheduler: job already exists")

	// ErrJobSkipped 单例任务仍在执行，或锁由其他实例持有.
	ErrJobSkipped = errors.New("scheduler: job skipped")
	// ErrNilPurger 清理任务缺少存储.
	ErrNilPurger = errors.New("scheduler: purger is nil")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateClosed
)

// Scheduler 维护任务调度器.
type Scheduler struct {
	cfg    *settings
	parser cron.Parser
	cron   *cron.Cron

	mu    sync.RWMutex
	state state
	jobs  map[string]*Job
	specs map[string]cron.Schedule

	inflight sync.WaitGroup
}

// New 创建调度器.
func New(opts ...Option) (*Scheduler, error) {
	cfg := newSettings(opts)
	parser := cfg.parser()

	return &Scheduler{
		cfg:    cfg,
		parser: parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.location),
			cron.WithLogger(cronLogger{log: cfg.log}),
			cron.WithChain(cron.Recover(cronLogger{log: cfg.log})),
		),
		jobs:  make(map[string]*Job),
		specs: make(map[string]cron.Schedule),
	}, nil
}

// Add 校验并添加任务，调度器运行中时立即生效.
func (s *Scheduler) Add(job *Job) error {
	if job == nil {
		return ErrHandlerNil
	}
	if err := job.Validate(); err != nil {
		return err
	}
	spec, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrScheduleInvalid, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrSchedulerClosed
	}
	if _, ok := s.jobs[job.Name]; ok {
		return ErrJobExists
	}
	if job.Timeout <= 0 {
		job.Timeout = s.cfg.timeout
	}

	s.jobs[job.Name] = job
	s.specs[job.Name] = spec
	if s.state == stateRunning {
		s.schedule(job, spec)
	}

	s.cfg.log.With(
		logger.String("job", job.Name),
		logger.String("schedule", job.Schedule),
		logger.Bool("singleton", job.Singleton),
		logger.Bool("distributed", job.Distributed),
	).Debug("[Scheduler] 任务已添加")
	return nil
}

// Remove 移除任务，执行中的那一次不受影响.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	if job.entryID != 0 {
		s.cron.Remove(job.entryID)
		job.entryID = 0
	}
	delete(s.jobs, name)
	delete(s.specs, name)
	return nil
}

// Get 按名称获取任务.
func (s *Scheduler) Get(name string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[name]
	return job, ok
}

// Next 返回任务下一次触发时间，调度器未启动时为零值.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[name]
	if !ok || job.entryID == 0 {
		return time.Time{}, ok
	}
	return s.cron.Entry(job.entryID).Next, true
}

// Start 开始按计划触发任务，重复调用无副作用.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateClosed:
		return ErrSchedulerClosed
	case stateRunning:
		return nil
	}

	for name, job := range s.jobs {
		s.schedule(job, s.specs[name])
	}
	s.cron.Start()
	s.state = stateRunning

	s.cfg.log.Info("[Scheduler] 调度器已启动", logger.Int("jobs", len(s.jobs)))
	return nil
}

// Shutdown 停止触发新任务，并等待执行中的任务结束或 ctx 到期.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.mu.Unlock()

	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cfg.log.Info("[Scheduler] 调度器已关闭")
		return nil
	case <-ctx.Done():
		s.cfg.log.Warn("[Scheduler] 等待执行中的任务超时", logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

// Running 调度器是否已启动且未关闭.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateRunning
}

// Run 立即同步执行一次任务，与计划触发遵守同样的单例和锁约束.
//
// 被跳过时返回 ErrJobSkipped.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	closed := s.state == stateClosed
	s.mu.RUnlock()

	switch {
	case closed:
		return ErrSchedulerClosed
	case !ok:
		return ErrJobNotFound
	}
	return s.execute(ctx, job)
}

// schedule 调用方需持有 s.mu.
func (s *Scheduler) schedule(job *Job, spec cron.Schedule) {
	job.entryID = s.cron.Schedule(spec, cron.FuncJob(func() {
		_ = s.execute(context.Background(), job)
	}))
}

func (s *Scheduler) execute(ctx context.Context, job *Job) error {
	s.inflight.Add(1)
	defer s.inflight.Done()

	log := s.cfg.log.With(logger.String("job", job.Name))

	if job.Singleton {
		if !job.running.CompareAndSwap(false, true) {
			job.skipped.Add(1)
			log.Debug("[Scheduler] 上一次执行未结束，跳过")
			return ErrJobSkipped
		}
		defer job.running.Store(false)
	}

	if !job.Distributed || s.cfg.locker == nil {
		return s.runAttempts(ctx, job, log)
	}

	err := lock.TryWithLock(ctx, s.cfg.locker, job.Name, s.lockTTL(job), func() error {
		return s.runAttempts(ctx, job, log)
	})
	if errors.Is(err, lock.ErrLockNotAcquired) {
		job.skipped.Add(1)
		log.Debug("[Scheduler] 锁由其他实例持有，跳过")
		return ErrJobSkipped
	}
	return err
}

// lockTTL 覆盖全部重试的最长耗时再留一分钟余量.
func (s *Scheduler) lockTTL(job *Job) time.Duration {
	budget := job.Timeout*time.Duration(job.Retries+1) +
		job.retryInterval()*time.Duration(job.Retries) +
		time.Minute
	return max(s.cfg.lockTTL, budget)
}

func (s *Scheduler) runAttempts(ctx context.Context, job *Job, log logger.Logger) error {
	n := 0
	backoff := retry.WithMaxRetries(uint64(max(job.Retries, 0)), retry.NewConstant(job.retryInterval()))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		n++
		took, err := job.attempt(ctx)
		if err == nil {
			log.Debug("[Scheduler] 任务完成", logger.Duration("took", took))
			return nil
		}
		log.Error("[Scheduler] 任务失败",
			logger.Attempt(n),
			logger.Int("retries", job.Retries),
			logger.Duration("took", took),
			logger.Err(err),
		)
		return retry.RetryableError(err)
	})
}
