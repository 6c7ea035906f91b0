package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc 任务处理函数.
type JobFunc func(ctx context.Context) error

// Job 维护任务.
type Job struct {
	// Name 任务名，分布式模式下同时作为锁的键
	Name     string
	Schedule string
	Handler  JobFunc

	// Timeout 单次尝试的超时，0 使用调度器默认值
	Timeout time.Duration

	// Singleton 上一次执行未结束时跳过本次触发
	Singleton bool
	// Distributed 多实例间只有拿到锁的实例执行，调度器未配置 Locker 时忽略
	Distributed bool

	// Retries 失败后的重试次数，间隔 RetryInterval
	Retries       int
	RetryInterval time.Duration

	entryID cron.EntryID
	running atomic.Bool

	runs, succeeded, failed, skipped atomic.Int64

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	lastTook time.Duration
}

// Snapshot 任务执行统计.
//
// Runs 按尝试次数计，一次带重试的执行可能计入多次.
type Snapshot struct {
	Runs      int64
	Succeeded int64
	Failed    int64
	Skipped   int64

	LastRunAt    time.Time
	LastError    error
	LastDuration time.Duration
}

// Validate 验证任务字段.
func (j *Job) Validate() error {
	switch {
	case j.Name == "":
		return ErrJobNameEmpty
	case j.Schedule == "":
		return ErrScheduleEmpty
	case j.Handler == nil:
		return ErrHandlerNil
	}
	return nil
}

// IsRunning 单例任务是否正在执行.
func (j *Job) IsRunning() bool {
	return j.running.Load()
}

// Stats 返回执行统计.
func (j *Job) Stats() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		Runs:         j.runs.Load(),
		Succeeded:    j.succeeded.Load(),
		Failed:       j.failed.Load(),
		Skipped:      j.skipped.Load(),
		LastRunAt:    j.lastRun,
		LastError:    j.lastErr,
		LastDuration: j.lastTook,
	}
}

// attempt 执行一次处理函数并记录结果.
func (j *Job) attempt(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	j.runs.Add(1)

	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()
	err := j.Handler(ctx)
	took := time.Since(start)

	if err == nil {
		j.succeeded.Add(1)
	} else {
		j.failed.Add(1)
	}

	j.mu.Lock()
	j.lastRun, j.lastErr, j.lastTook = start, err, took
	j.mu.Unlock()
	return took, err
}

func (j *Job) retryInterval() time.Duration {
	return max(j.RetryInterval, time.Millisecond)
}

// JobBuilder 任务构建器.
type JobBuilder struct {
	job *Job
}

// NewJob 创建任务构建器.
func NewJob(name string) *JobBuilder {
	return &JobBuilder{job: &Job{Name: name}}
}

// Schedule 设置 cron 表达式.
func (b *JobBuilder) Schedule(expr string) *JobBuilder {
	b.job.Schedule = expr
	return b
}

// Handler 设置处理函数.
func (b *JobBuilder) Handler(fn JobFunc) *JobBuilder {
	b.job.Handler = fn
	return b
}

// Timeout 设置单次尝试超时.
func (b *JobBuilder) Timeout(d time.Duration) *JobBuilder {
	b.job.Timeout = d
	return b
}

// Singleton 禁止重叠执行.
func (b *JobBuilder) Singleton() *JobBuilder {
	b.job.Singleton = true
	return b
}

// Distributed 多实例互斥执行.
func (b *JobBuilder) Distributed() *JobBuilder {
	b.job.Distributed = true
	return b
}

// Retry 设置失败重试.
func (b *JobBuilder) Retry(retries int, interval time.Duration) *JobBuilder {
	b.job.Retries = retries
	b.job.RetryInterval = interval
	return b
}

// Build 校验并返回任务.
func (b *JobBuilder) Build() (*Job, error) {
	if err := b.job.Validate(); err != nil {
		return nil, err
	}
	return b.job, nil
}
