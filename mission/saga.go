package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/Tsukikage7/questline/saga"
)

// Deps 任务完成流程依赖的外部服务.
//
// Missions、Wallet 必需，其余为 nil 时对应步骤直接跳过.
type Deps struct {
	Missions     MissionRepository
	Wallet       Wallet
	Achievements AchievementService
	Guilds       GuildService
	Feed         FeedService
	Notifier     Notifier
}

func (d Deps) validate() error {
	if d.Missions == nil {
		return fmt.Errorf("%w: MissionRepository", ErrMissingDependency)
	}
	if d.Wallet == nil {
		return fmt.Errorf("%w: Wallet", ErrMissingDependency)
	}
	return nil
}

// NewCompletionSaga 创建任务完成流程编排器.
func NewCompletionSaga(deps Deps, opts ...saga.Option) (*saga.Orchestrator[*CompletionContext], error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	return saga.New[*CompletionContext](SagaType).
		AddStep(
			markCompletedStep(deps.Missions),
			grantRewardStep(deps.Wallet),
			unlockAchievementStep(deps.Achievements),
			guildContributionStep(deps.Guilds),
			createFeedPostStep(deps.Feed),
			notifyUserStep(deps.Notifier),
		).
		Options(opts...).
		Build(), nil
}

func markCompletedStep(repo MissionRepository) saga.Step[*CompletionContext] {
	return saga.NewStep(StepMarkCompleted,
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if err := repo.MarkCompleted(ctx, sc.UserID, sc.MissionID); err != nil {
				return saga.FailureWithError("任务状态更新失败", err)
			}
			return saga.Success("任务已完成")
		},
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if err := repo.Reopen(ctx, sc.UserID, sc.MissionID); err != nil {
				return saga.FailureWithError("任务状态回滚失败", err)
			}
			return saga.Success("任务已重新开放")
		},
	)
}

func grantRewardStep(wallet Wallet) saga.Step[*CompletionContext] {
	return saga.NewStep(StepGrantReward,
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if sc.RewardPoints <= 0 {
				return saga.Success("无奖励")
			}
			txID, err := wallet.Credit(ctx, sc.UserID, sc.RewardPoints, "mission:"+sc.MissionID)
			if err != nil {
				return saga.FailureWithError("奖励发放失败", err)
			}
			sc.PutCompensationData(keyTransactionID, txID)
			return saga.SuccessWithData("奖励已发放", txID)
		},
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			txID, ok := sc.TransactionID()
			if !ok {
				return saga.Success("无需冲正")
			}
			if err := wallet.Reverse(ctx, txID); err != nil {
				return saga.FailureWithError("奖励冲正失败", err)
			}
			return saga.Success("奖励已冲正")
		},
	)
}

func unlockAchievementStep(svc AchievementService) saga.Step[*CompletionContext] {
	return saga.NewStep(StepUnlockAchievement,
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if err := svc.Unlock(ctx, sc.UserID, sc.AchievementID); err != nil {
				return saga.FailureWithError("成就解锁失败", err)
			}
			return saga.Success("成就已解锁")
		},
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if err := svc.Revoke(ctx, sc.UserID, sc.AchievementID); err != nil {
				return saga.FailureWithError("成就撤销失败", err)
			}
			return saga.Success("成就已撤销")
		},
	).When(func(_ context.Context, sc *CompletionContext) bool {
		return svc != nil && sc.AchievementID != ""
	})
}

func guildContributionStep(svc GuildService) saga.Step[*CompletionContext] {
	return saga.NewStep(StepGuildContribution,
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if err := svc.AddContribution(ctx, sc.GuildID, sc.UserID, sc.RewardPoints); err != nil {
				return saga.FailureWithError("公会贡献累加失败", err)
			}
			return saga.Success("公会贡献已累加")
		},
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			if err := svc.RemoveContribution(ctx, sc.GuildID, sc.UserID, sc.RewardPoints); err != nil {
				return saga.FailureWithError("公会贡献回滚失败", err)
			}
			return saga.Success("公会贡献已回滚")
		},
	).When(func(_ context.Context, sc *CompletionContext) bool {
		return svc != nil && sc.GuildID != ""
	}).NonMandatory()
}

func createFeedPostStep(svc FeedService) saga.Step[*CompletionContext] {
	return saga.NewStep(StepCreateFeedPost,
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			postID, err := svc.CreatePost(ctx, sc.UserID, fmt.Sprintf("完成了任务 %s", sc.MissionID))
			if err != nil {
				return saga.FailureWithError("动态发布失败", err)
			}
			sc.PutCompensationData(keyPostID, postID)
			return saga.SuccessWithData("动态已发布", postID)
		},
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			postID, ok := sc.PostID()
			if !ok {
				return saga.Success("无需删除动态")
			}
			if err := svc.DeletePost(ctx, postID); err != nil {
				return saga.FailureWithError("动态删除失败", err)
			}
			return saga.Success("动态已删除")
		},
	).When(func(_ context.Context, sc *CompletionContext) bool {
		return svc != nil && sc.ShareToFeed
	})
}

func notifyUserStep(n Notifier) saga.Step[*CompletionContext] {
	return saga.NewStep(StepNotifyUser,
		func(ctx context.Context, sc *CompletionContext) saga.StepResult {
			msg := fmt.Sprintf("恭喜完成任务 %s，获得 %d 积分", sc.MissionID, sc.RewardPoints)
			if err := n.Notify(ctx, sc.UserID, msg); err != nil {
				return saga.FailureWithError("通知发送失败", err)
			}
			return saga.Success("通知已发送")
		},
		nil,
	).When(func(context.Context, *CompletionContext) bool {
		return n != nil
	}).NonMandatory().WithRetry(2, 200*time.Millisecond)
}
