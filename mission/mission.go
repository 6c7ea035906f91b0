// Package mission 实现任务完成流程的 Saga.
//
// 用户完成任务后依次执行：标记任务完成、发放奖励、解锁成就、累加公会贡献、
// 发布动态、通知用户. 必需步骤失败时按完成顺序的逆序回滚已生效的步骤.
package mission

import (
	"errors"

	"github.com/Tsukikage7/questline/saga"
)

// SagaType 任务完成流程类型.
const SagaType = "MISSION_COMPLETION"

// 步骤名.
const (
	StepMarkCompleted     = "mark-mission-completed"
	StepGrantReward       = "grant-reward"
	StepUnlockAchievement = "unlock-achievement"
	StepGuildContribution = "add-guild-contribution"
	StepCreateFeedPost    = "create-feed-post"
	StepNotifyUser        = "notify-user"
)

// 补偿数据键.
const (
	keyTransactionID = "reward.transaction_id"
	keyPostID        = "feed.post_id"
)

// 预定义错误.
var (
	ErrAlreadyCompleted  = errors.New("mission: 任务已完成")
	ErrMissionNotFound   = errors.New("mission: 任务不存在")
	ErrTransactionAbsent = errors.New("mission: 交易不存在")
	ErrMissingDependency = errors.New("mission: 缺少依赖")
)

// CompletionContext 任务完成流程上下文.
type CompletionContext struct {
	*saga.BaseContext

	MissionID     string
	UserID        string
	GuildID       string
	RewardPoints  int64
	AchievementID string
	ShareToFeed   bool
}

// NewCompletionContext 创建任务完成上下文，执行者为用户.
func NewCompletionContext(userID, missionID string) *CompletionContext {
	return &CompletionContext{
		BaseContext: saga.NewBaseContext(SagaType, userID),
		MissionID:   missionID,
		UserID:      userID,
	}
}

// TransactionID 奖励发放产生的交易 ID.
func (c *CompletionContext) TransactionID() (string, bool) {
	return saga.CompensationValue[string](c, keyTransactionID)
}

// PostID 发布的动态 ID.
func (c *CompletionContext) PostID() (string, bool) {
	return saga.CompensationValue[string](c, keyPostID)
}
