package services

import (
	"context"
	"time"

	"gamification-engine/cache"

	"gorm.io/gorm"
)

type EngineOptions struct {
	StreakLocation *time.Location
	ConversionRate int64
	Live           *cache.RedisCache
}

// Engine wires the gamification services together:
// Award -> badge evaluation -> bonus Award, then level check.
type Engine struct {
	Config     *ConfigService
	Points     *PointsService
	Levels     *LevelService
	Badges     *BadgeService
	Streaks    *StreakService
	Currency   *CurrencyService
	Rewards    *RewardService
	Challenges *ChallengeService
	Rankings   *RankingService
	Events     *EventService
	Dispatcher *Dispatcher
}

func NewEngine(db *gorm.DB, opts EngineOptions) *Engine {
	loc := opts.StreakLocation
	if loc == nil {
		loc = time.UTC
	}

	events := NewEventService(db)
	cfg := NewConfigService(db)
	points := NewPointsService(db, cfg)
	levels := NewLevelService(db, points, events)
	badges := NewBadgeService(db, points, events, cfg)
	badges.Location = loc
	points.UseCascade(badges, levels)

	currency := NewCurrencyService(db, opts.ConversionRate)
	streaks := NewStreakService(db, points, events, loc)
	challenges := NewChallengeService(db, points, currency, badges, events)

	rankings := NewRankingService(db, nil)
	if opts.Live != nil {
		points.Live = opts.Live
		rankings.Live = opts.Live
	}

	return &Engine{
		Config:     cfg,
		Points:     points,
		Levels:     levels,
		Badges:     badges,
		Streaks:    streaks,
		Currency:   currency,
		Rewards:    NewRewardService(db, currency),
		Challenges: challenges,
		Rankings:   rankings,
		Events:     events,
		Dispatcher: &Dispatcher{Points: points, Streaks: streaks, Challenges: challenges},
	}
}

// Bootstrap seeds reference data (levels, starter badges) into an empty database.
func (e *Engine) Bootstrap(ctx context.Context, maxLevel int) error {
	if _, err := e.Levels.SeedLevels(ctx, maxLevel); err != nil {
		return err
	}
	_, err := e.Badges.SeedDefaultBadges(ctx)
	return err
}
