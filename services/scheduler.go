// services/scheduler.go
package services

import (
	"context"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"github.com/go-co-op/gocron/v2"
)

type SchedulerOptions struct {
	ChallengeStatusInterval  time.Duration
	RankingRecomputeInterval time.Duration
	HistoryRetention         int
}

// StartScheduler registers the background jobs: challenge status transitions
// (and automatic payouts), ranking snapshots, at-risk streak reminders and
// currency history retention. Call Shutdown on the returned scheduler.
func (e *Engine) StartScheduler(ctx context.Context, opts SchedulerOptions) (gocron.Scheduler, error) {
	if opts.ChallengeStatusInterval <= 0 {
		opts.ChallengeStatusInterval = time.Minute
	}
	if opts.RankingRecomputeInterval <= 0 {
		opts.RankingRecomputeInterval = 15 * time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every minute: activate / end challenges, pay out ended ones
	if _, err := sched.NewJob(
		gocron.DurationJob(opts.ChallengeStatusInterval),
		gocron.NewTask(func() {
			if _, err := e.Challenges.AdvanceStatuses(ctx, time.Now()); err != nil {
				utils.LogError("[Scheduler] challenge status error: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(opts.RankingRecomputeInterval),
		gocron.NewTask(func() {
			now := time.Now()
			for _, typ := range []models.RankingType{models.RankingWeekly, models.RankingMonthly, models.RankingAllTime} {
				if _, err := e.Rankings.RecomputeRankings(ctx, typ, now); err != nil {
					utils.LogError("[Scheduler] %s rankings error: %v", typ, err)
				}
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			n, err := e.Streaks.NotifyAtRisk(ctx, time.Now())
			if err != nil {
				utils.LogError("[Scheduler] at-risk streak scan error: %v", err)
				return
			}
			if n > 0 {
				utils.LogInfo("🔔 %d streak(s) at risk notified", n)
			}
		}),
	); err != nil {
		return nil, err
	}

	if opts.HistoryRetention > 0 {
		if _, err := sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
			gocron.NewTask(func() {
				if _, err := e.Currency.PruneHistory(ctx, opts.HistoryRetention); err != nil {
					utils.LogError("[Scheduler] currency history prune error: %v", err)
				}
			}),
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
