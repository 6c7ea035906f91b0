package mission

import "context"

// MissionRepository 任务完成状态.
type MissionRepository interface {
	// MarkCompleted 标记用户完成任务，已完成时返回 ErrAlreadyCompleted.
	MarkCompleted(ctx context.Context, userID, missionID string) error
	// Reopen 撤销完成状态.
	Reopen(ctx context.Context, userID, missionID string) error
}

// Wallet 积分钱包.
type Wallet interface {
	// Credit 发放积分，返回交易 ID.
	Credit(ctx context.Context, userID string, points int64, reason string) (string, error)
	// Reverse 冲正交易.
	Reverse(ctx context.Context, transactionID string) error
}

// AchievementService 成就.
type AchievementService interface {
	Unlock(ctx context.Context, userID, achievementID string) error
	Revoke(ctx context.Context, userID, achievementID string) error
}

// GuildService 公会贡献.
type GuildService interface {
	AddContribution(ctx context.Context, guildID, userID string, points int64) error
	RemoveContribution(ctx context.Context, guildID, userID string, points int64) error
}

// FeedService 社交动态.
type FeedService interface {
	// CreatePost 发布动态，返回动态 ID.
	CreatePost(ctx context.Context, userID, content string) (string, error)
	DeletePost(ctx context.Context, postID string) error
}

// Notifier 用户通知.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}
