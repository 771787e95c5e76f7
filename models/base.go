package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the string UUID primary key shared by every table.
// IDs are generated in Go so the same models run on postgres and sqlite.
type Base struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&PointEntry{},
		&GamificationConfig{},
		&Level{},
		&UserProfile{},
		&BadgeCriteria{},
		&Badge{},
		&UserBadge{},
		&UserBadgeProgress{},
		&BadgeGift{},
		&Streak{},
		&StreakReward{},
		&Currency{},
		&CurrencyTransaction{},
		&RewardItem{},
		&RewardRedemption{},
		&Challenge{},
		&ChallengeObjective{},
		&ChallengeTeam{},
		&ChallengeTeamProgress{},
		&ChallengeParticipant{},
		&ChallengeProgressEvent{},
		&TeamMember{},
		&Ranking{},
		&GamificationEvent{},
		&ProcessedActivity{},
	}
}
