package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/gorm/clause"
)

// ActivityEvent is a platform action delivered by the sync service
// (task completed, report filed, training finished, ...).
type ActivityEvent struct {
	ID            string                 `json:"id"`
	Kind          string                 `json:"kind"`
	UserID        string                 `json:"user_id"`
	Department    *string                `json:"department,omitempty"`
	ChallengeID   *string                `json:"challenge_id,omitempty"`
	TeamID        *string                `json:"team_id,omitempty"`
	Amount        int64                  `json:"amount,omitempty"`
	MultiplierKey string                 `json:"multiplier_key,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// streakTypes maps activity kinds to the streak they extend.
var streakTypes = map[string]string{
	"task_completed":     "task",
	"report_filed":       "report",
	"training_completed": "training",
	"goal_achieved":      "goal",
}

// StreakTypeFor returns the streak an activity kind feeds, or "" for none.
func StreakTypeFor(kind string) string {
	return streakTypes[kind]
}

type DispatchResult struct {
	Duplicate bool                          `json:"duplicate"`
	Award     *AwardResult                  `json:"award,omitempty"`
	Streak    *StreakUpdate                 `json:"streak,omitempty"`
	Team      *models.ChallengeTeamProgress `json:"team_progress,omitempty"`
	Personal  *models.ChallengeParticipant  `json:"participant_progress,omitempty"`
}

// Dispatcher fans one activity event out to the points ledger, the streak
// tracker and challenge progress. A failed event is not marked and is retried
// on the next delivery; every step is keyed by the event id, so a retry only
// completes what the failed attempt left undone.
type Dispatcher struct {
	Points     *PointsService
	Streaks    *StreakService
	Challenges *ChallengeService
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev ActivityEvent) (*DispatchResult, error) {
	if ev.ID == "" || ev.UserID == "" || ev.Kind == "" {
		return nil, fmt.Errorf("%w: activity event needs id, user and kind", ErrInvalidInput)
	}

	db := d.Points.DB.WithContext(ctx)
	var seen int64
	if err := db.Model(&models.ProcessedActivity{}).Where("event_id = ?", ev.ID).Count(&seen).Error; err != nil {
		return nil, err
	}
	if seen > 0 {
		return &DispatchResult{Duplicate: true}, nil
	}

	result := &DispatchResult{}

	award, err := d.Points.AwardForAction(ctx, ActionAward{
		UserID:        ev.UserID,
		Action:        ev.Kind,
		Department:    ev.Department,
		MultiplierKey: ev.MultiplierKey,
		Metadata:      ev.Metadata,
		EventID:       ev.ID,
	})
	result.Award = award
	if err != nil {
		return result, fmt.Errorf("award %s: %w", ev.ID, err)
	}

	if st := StreakTypeFor(ev.Kind); st != "" && d.Streaks != nil {
		occurred := ev.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}
		upd, err := d.Streaks.UpdateStreak(ctx, ev.UserID, st, occurred)
		switch {
		case errors.Is(err, ErrStaleActivity):
			utils.LogDebug("🕰️ Late activity %s ignored for %s streak", ev.ID, st)
		case err != nil:
			return result, fmt.Errorf("streak for %s: %w", ev.ID, err)
		default:
			result.Streak = upd
		}
	}

	if ev.ChallengeID != nil && *ev.ChallengeID != "" && d.Challenges != nil {
		amount := ev.Amount
		if amount <= 0 {
			amount = 1
		}
		var err error
		if ev.TeamID != nil && *ev.TeamID != "" {
			result.Team, err = d.Challenges.ApplyTeamProgress(ctx, ev.ID, *ev.ChallengeID, *ev.TeamID, ev.Kind, amount)
		} else {
			result.Personal, err = d.Challenges.ApplyParticipantProgress(ctx, ev.ID, *ev.ChallengeID, ev.UserID, ev.Kind, amount)
		}
		switch {
		case errors.Is(err, ErrChallengeEnded), errors.Is(err, ErrChallengeNotActive), errors.Is(err, ErrNotParticipating):
			utils.LogDebug("⏭️ Challenge progress skipped for %s: %v", ev.ID, err)
		case err != nil:
			return result, fmt.Errorf("challenge progress for %s: %w", ev.ID, err)
		}
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedActivity{EventID: ev.ID, Kind: ev.Kind, UserID: ev.UserID}).Error; err != nil {
		return result, fmt.Errorf("mark %s processed: %w", ev.ID, err)
	}
	return result, nil
}
