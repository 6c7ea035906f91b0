package scheduler

import (
	"context"
	"time"

	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/saga"
)

// PurgeJobName 审计记录清理任务名.
const PurgeJobName = "saga-audit-purge"

// NewPurgeJob 创建审计记录清理任务.
//
// 每次执行删除结束时间早于 now-retention 的终态记录，任务为单例且多实例间互斥.
func NewPurgeJob(schedule string, purger saga.Purger, retention time.Duration, log logger.Logger) (*Job, error) {
	if purger == nil {
		return nil, ErrNilPurger
	}
	if log == nil {
		log = logger.NewNop()
	}

	return NewJob(PurgeJobName).
		Schedule(schedule).
		Handler(func(ctx context.Context) error {
			n, err := purger.Purge(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("[Scheduler] 已清理过期审计记录", logger.Int64("purged", n))
			}
			return nil
		}).
		Singleton().
		Distributed().
		Retry(2, time.Second).
		Build()
}
