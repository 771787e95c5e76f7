package models

import (
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventLevelUp         EventType = "level_up"
	EventBadgeEarned     EventType = "badge_earned"
	EventStreakMilestone EventType = "streak_milestone"
	EventStreakAtRisk    EventType = "streak_at_risk"
	EventChallengeReward EventType = "challenge_reward"
)

// GamificationEvent is the outbox consumed by the notification stream.
type GamificationEvent struct {
	Base
	UserID    string         `gorm:"index:idx_event_user_created,priority:1;not null" json:"user_id"`
	Type      EventType      `gorm:"type:varchar(32);not null" json:"type"`
	Title     string         `json:"title"`
	Payload   datatypes.JSON `json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index:idx_event_user_created,priority:2" json:"created_at"`
}

// ProcessedActivity marks a platform activity event as handled.
type ProcessedActivity struct {
	Base
	EventID     string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"event_id"`
	Kind        string    `gorm:"type:varchar(64)" json:"kind"`
	UserID      string    `gorm:"index" json:"user_id"`
	ProcessedAt time.Time `gorm:"autoCreateTime" json:"processed_at"`
}
