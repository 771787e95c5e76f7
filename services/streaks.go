package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StreakMilestones maps a consecutive-day count to its one-time bonus.
var StreakMilestones = map[int]int64{
	3:   10,
	7:   25,
	14:  50,
	30:  100,
	60:  250,
	100: 500,
	365: 1000,
}

// PointsAwarder is the write side of the points ledger.
type PointsAwarder interface {
	Award(ctx context.Context, in AwardInput) (*AwardResult, error)
}

type StreakService struct {
	DB       *gorm.DB
	Ledger   PointsAwarder
	Events   EventEmitter
	Location *time.Location
}

func NewStreakService(db *gorm.DB, ledger PointsAwarder, events EventEmitter, loc *time.Location) *StreakService {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakService{DB: db, Ledger: ledger, Events: events, Location: loc}
}

// StreakUpdate is the outcome of UpdateStreak.
type StreakUpdate struct {
	Streak    models.Streak        `json:"streak"`
	Reset     bool                 `json:"reset"`
	Milestone *models.StreakReward `json:"milestone,omitempty"`
}

// dayOf truncates t to midnight in the tracker's location.
func (s *StreakService) dayOf(t time.Time) time.Time {
	t = t.In(s.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.Location)
}

// daysBetween counts calendar days from a to b; DST shifts don't matter.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// UpdateStreak records an activity day for (user, type).
// Same day is a no-op for the counter, the next day extends the streak,
// a gap resets it to 1 and an earlier day is rejected with ErrStaleActivity.
func (s *StreakService) UpdateStreak(ctx context.Context, userID, streakType string, activity time.Time) (*StreakUpdate, error) {
	streakType = strings.TrimSpace(streakType)
	if userID == "" || streakType == "" {
		return nil, fmt.Errorf("%w: user and streak type are required", ErrInvalidInput)
	}
	if activity.IsZero() {
		activity = time.Now()
	}
	day := s.dayOf(activity)

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var st models.Streak
		err := s.DB.WithContext(ctx).Where("user_id = ? AND type = ?", userID, streakType).First(&st).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			st = models.Streak{
				UserID:          userID,
				Type:            streakType,
				ConsecutiveDays: 1,
				LongestStreak:   1,
				LastActivity:    day.UTC(),
			}
			res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&st)
			if res.Error != nil {
				return nil, fmt.Errorf("create streak %s/%s: %w", userID, streakType, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			utils.LogInfo("🔥 Streak started: %s (%s)", userID, streakType)
			return &StreakUpdate{Streak: st}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load streak %s/%s: %w", userID, streakType, err)
		}

		diff := daysBetween(s.dayOf(st.LastActivity), day)
		next := st
		reset := false
		switch {
		case diff < 0:
			return nil, fmt.Errorf("%w: %s before %s", ErrStaleActivity,
				day.Format("2006-01-02"), s.dayOf(st.LastActivity).Format("2006-01-02"))
		case diff == 0:
			return &StreakUpdate{Streak: st}, nil
		case diff == 1:
			next.ConsecutiveDays++
			if next.ConsecutiveDays > next.LongestStreak {
				next.LongestStreak = next.ConsecutiveDays
			}
		default:
			next.ConsecutiveDays = 1
			reset = true
		}
		next.LastActivity = day.UTC()
		next.Version = st.Version + 1

		res := s.DB.WithContext(ctx).
			Model(&models.Streak{}).
			Where("id = ? AND version = ?", st.ID, st.Version).
			Updates(map[string]interface{}{
				"consecutive_days": next.ConsecutiveDays,
				"longest_streak":   next.LongestStreak,
				"last_activity":    next.LastActivity,
				"version":          next.Version,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("update streak %s/%s: %w", userID, streakType, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		out := &StreakUpdate{Streak: next, Reset: reset}
		if diff == 1 {
			reward, err := s.rewardMilestone(ctx, next)
			out.Milestone = reward
			if err != nil {
				return out, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("update streak %s/%s: %w", userID, streakType, ErrConcurrentUpdate)
}

// rewardMilestone grants the bonus for an exact milestone day, once per streak.
func (s *StreakService) rewardMilestone(ctx context.Context, st models.Streak) (*models.StreakReward, error) {
	bonus, ok := StreakMilestones[st.ConsecutiveDays]
	if !ok {
		return nil, nil
	}

	reward := models.StreakReward{StreakID: st.ID, Day: st.ConsecutiveDays, Reward: bonus}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&reward)
	if res.Error != nil {
		return nil, fmt.Errorf("record streak milestone: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	utils.LogSuccess("🔥 Streak milestone: %s reached %d days (%s)", st.UserID, st.ConsecutiveDays, st.Type)

	if s.Events != nil {
		title := fmt.Sprintf("%d-day %s streak!", st.ConsecutiveDays, strings.ReplaceAll(st.Type, "_", " "))
		if err := s.Events.Emit(ctx, st.UserID, models.EventStreakMilestone, title, reward); err != nil {
			utils.LogWarn("⚠️ Failed to record streak_milestone event for %s: %v", st.UserID, err)
		}
	}

	if s.Ledger != nil {
		if _, err := s.Ledger.Award(ctx, AwardInput{
			UserID:      st.UserID,
			Amount:      bonus,
			Source:      models.SourceStreakMilestone,
			Description: fmt.Sprintf("%d-day %s streak", st.ConsecutiveDays, st.Type),
			Metadata:    map[string]interface{}{"streak_id": st.ID, "day": st.ConsecutiveDays, "type": st.Type},
			EventID:     fmt.Sprintf("streak:%s:%d", st.ID, st.ConsecutiveDays),
		}); err != nil {
			return &reward, fmt.Errorf("award streak milestone bonus: %w", err)
		}
	}
	return &reward, nil
}

// GetCurrentStreak returns the streak, or a zero streak when none exists.
func (s *StreakService) GetCurrentStreak(ctx context.Context, userID, streakType string) (*models.Streak, error) {
	var st models.Streak
	err := s.DB.WithContext(ctx).
		Preload("RewardsReceived", func(db *gorm.DB) *gorm.DB { return db.Order("day ASC") }).
		Where("user_id = ? AND type = ?", userID, streakType).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Streak{UserID: userID, Type: streakType}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStreaks returns every streak of a user.
func (s *StreakService) ListStreaks(ctx context.Context, userID string) ([]models.Streak, error) {
	var out []models.Streak
	err := s.DB.WithContext(ctx).
		Preload("RewardsReceived").
		Where("user_id = ?", userID).
		Order("type ASC").
		Find(&out).Error
	return out, err
}

// IsAtRisk is true when the streak is alive and the last activity was yesterday.
func (s *StreakService) IsAtRisk(ctx context.Context, userID, streakType string, now time.Time) (bool, error) {
	st, err := s.GetCurrentStreak(ctx, userID, streakType)
	if err != nil {
		return false, err
	}
	return s.atRisk(*st, now), nil
}

func (s *StreakService) atRisk(st models.Streak, now time.Time) bool {
	if st.ConsecutiveDays <= 0 || st.LastActivity.IsZero() {
		return false
	}
	return daysBetween(s.dayOf(st.LastActivity), s.dayOf(now)) == 1
}

// ListAtRisk returns live streaks whose last activity was yesterday.
// An empty streakType matches every type.
func (s *StreakService) ListAtRisk(ctx context.Context, streakType string, now time.Time) ([]models.Streak, error) {
	today := s.dayOf(now)
	yesterday := today.AddDate(0, 0, -1)

	q := s.DB.WithContext(ctx).
		Where("consecutive_days > 0 AND last_activity >= ? AND last_activity < ?", yesterday.UTC(), today.UTC())
	if streakType != "" {
		q = q.Where("type = ?", streakType)
	}
	var out []models.Streak
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// NotifyAtRisk emits a streak_at_risk event for each streak about to break.
func (s *StreakService) NotifyAtRisk(ctx context.Context, now time.Time) (int, error) {
	streaks, err := s.ListAtRisk(ctx, "", now)
	if err != nil {
		return 0, err
	}
	if s.Events == nil {
		return 0, nil
	}
	for _, st := range streaks {
		title := fmt.Sprintf("Your %d-day %s streak ends tonight", st.ConsecutiveDays, strings.ReplaceAll(st.Type, "_", " "))
		if err := s.Events.Emit(ctx, st.UserID, models.EventStreakAtRisk, title, st); err != nil {
			return 0, err
		}
	}
	return len(streaks), nil
}
