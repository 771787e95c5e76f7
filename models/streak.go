package models

import "time"

// Streak is a per-user, per-activity-type consecutive-day counter.
// Version guards read-modify-write updates.
type Streak struct {
	Base
	UserID          string         `gorm:"uniqueIndex:idx_streak_user_type,priority:1;not null" json:"user_id"`
	Type            string         `gorm:"uniqueIndex:idx_streak_user_type,priority:2;type:varchar(32);not null" json:"type"`
	ConsecutiveDays int            `gorm:"default:0" json:"consecutive_days"`
	LongestStreak   int            `gorm:"default:0" json:"longest_streak"`
	LastActivity    time.Time      `gorm:"index" json:"last_activity"` // midnight, stored in UTC
	Version         int64          `gorm:"default:0" json:"-"`
	RewardsReceived []StreakReward `gorm:"foreignKey:StreakID" json:"rewards_received,omitempty"`
	Timestamps
}

// StreakReward is a milestone bonus; unique per (streak, day).
type StreakReward struct {
	Base
	StreakID   string    `gorm:"uniqueIndex:idx_streak_reward_day,priority:1;not null" json:"streak_id"`
	Day        int       `gorm:"uniqueIndex:idx_streak_reward_day,priority:2;not null" json:"day"`
	Reward     int64     `json:"reward"`
	ReceivedAt time.Time `gorm:"autoCreateTime" json:"received_at"`
}
