package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/mission"
	"github.com/Tsukikage7/questline/saga"
)

// raidMission 动态发布总是失败的任务，用于演示补偿.
const raidMission = "weekly-raid"

var errFeedUnavailable = errors.New("feed service unavailable")

// flakyFeed 对指定任务的动态发布返回失败.
type flakyFeed struct {
	mission.FeedService
	failOn string
}

func (f flakyFeed) CreatePost(ctx context.Context, userID, content string) (string, error) {
	if f.failOn != "" && strings.Contains(content, f.failOn) {
		return "", errFeedUnavailable
	}
	return f.FeedService.CreatePost(ctx, userID, content)
}

// newDemoDeps 创建演示用的内存协作服务.
func newDemoDeps(log logger.Logger) mission.Deps {
	return mission.Deps{
		Missions:     mission.NewMemoryMissions(),
		Wallet:       mission.NewMemoryWallet(),
		Achievements: mission.NewMemoryAchievements(),
		Guilds:       mission.NewMemoryGuilds(),
		Feed:         flakyFeed{FeedService: mission.NewMemoryFeed(), failOn: raidMission},
		Notifier:     mission.NewLogNotifier(log),
	}
}

// runDemo 为每个用户执行一次成功的日常任务和一次会补偿的团队副本任务.
func runDemo(ctx context.Context, orch *saga.Orchestrator[*mission.CompletionContext], users int, log logger.Logger) error {
	for i := range users {
		userID := fmt.Sprintf("player-%d", i+1)

		daily := mission.NewCompletionContext(userID, "daily-login")
		daily.RewardPoints = 50
		daily.AchievementID = "first-steps"
		daily.ShareToFeed = true

		raid := mission.NewCompletionContext(userID, raidMission)
		raid.RewardPoints = 500
		raid.GuildID = "guild-7"
		raid.AchievementID = "raid-veteran"
		raid.ShareToFeed = true

		for _, mc := range []*mission.CompletionContext{daily, raid} {
			res, err := orch.Execute(ctx, mc)
			if err != nil {
				return err
			}
			logResult(log, res)
		}
	}
	return nil
}

func logResult(log logger.Logger, res *saga.Result[*mission.CompletionContext]) {
	mc := res.Context()
	l := log.With(
		logger.SagaID(mc.ID()),
		logger.SagaType(mc.Type()),
		logger.String("user", mc.UserID),
		logger.String("mission", mc.MissionID),
		logger.String("status", mc.Status().String()),
	)

	if res.IsSuccess() {
		l.With(logger.Any("completed", res.ExecutionLog().Steps(saga.StepCompleted))).
			Info("[Mission] 任务完成")
	} else {
		l.With(
			logger.String("failed_step", res.FailedStep()),
			logger.String("message", res.Message()),
			logger.Bool("compensated", res.IsCompensated()),
			logger.Any("compensations", res.ExecutionLog().Steps(saga.CompensationCompleted)),
		).Warn("[Mission] 任务回滚")
	}

	for _, e := range res.ExecutionLog().Entries() {
		fields := []logger.Field{
			logger.String("kind", string(e.Kind)),
			logger.Step(e.Step),
			logger.Duration("duration", e.Duration),
		}
		if e.Attempt > 0 {
			fields = append(fields, logger.Attempt(e.Attempt))
		}
		if e.Err != nil {
			fields = append(fields, logger.Err(e.Err))
		}
		l.With(fields...).Debug("[Mission] 执行日志")
	}
}
