package models

import (
	"time"
)

type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "common"
	RarityRare      BadgeRarity = "rare"
	RarityEpic      BadgeRarity = "epic"
	RarityLegendary BadgeRarity = "legendary"
)

type CriteriaType string

const (
	CriteriaCount     CriteriaType = "count"
	CriteriaThreshold CriteriaType = "threshold"
	CriteriaCombo     CriteriaType = "combo"
)

// BadgeCriteria is the single rule a badge is evaluated against.
// SourceTag is the PointEntry.Source counted by count/combo criteria;
// when empty it is derived from Description.
type BadgeCriteria struct {
	Base
	Type        CriteriaType `gorm:"type:varchar(16);not null" json:"type"`
	Value       int64        `gorm:"not null" json:"value"`
	Description string       `json:"description"`
	SourceTag   string       `gorm:"type:varchar(64)" json:"source_tag,omitempty"`
	Timestamps
}

// Badge: static config, editable by admins
type Badge struct {
	Base
	Code        string         `gorm:"uniqueIndex;not null" json:"code"` // e.g., "TASK_MASTER"
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	IconURL     string         `gorm:"type:text" json:"icon_url"` // R2 URL to SVG/png
	Rarity      BadgeRarity    `gorm:"type:varchar(16);default:'common'" json:"rarity"`
	Category    string         `gorm:"type:varchar(32);index" json:"category"`
	CriteriaID  *string        `gorm:"index" json:"criteria_id,omitempty"`
	Criteria    *BadgeCriteria `gorm:"foreignKey:CriteriaID" json:"criteria,omitempty"`
	SocialBadge bool           `gorm:"default:false" json:"social_badge"`
	Active      bool           `gorm:"not null" json:"active"`
	Timestamps
}

// UserBadge: awarded instance, at most one per (user, badge)
type UserBadge struct {
	Base
	UserID   string    `gorm:"uniqueIndex:idx_user_badge,priority:1;not null" json:"user_id"`
	BadgeID  string    `gorm:"uniqueIndex:idx_user_badge,priority:2;not null;index" json:"badge_id"`
	Badge    *Badge    `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	Source   string    `gorm:"type:varchar(64)" json:"source"` // criteria, challenge_reward, peer_recognition
	EarnedAt time.Time `gorm:"autoCreateTime" json:"earned_at"`
}

// UserBadgeProgress is the per-user progress toward a badge's criteria.
type UserBadgeProgress struct {
	Base
	UserID    string    `gorm:"uniqueIndex:idx_user_badge_progress,priority:1;not null" json:"user_id"`
	BadgeID   string    `gorm:"uniqueIndex:idx_user_badge_progress,priority:2;not null" json:"badge_id"`
	Progress  int64     `gorm:"default:0" json:"progress"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BadgeGift records peer recognition; one gift per giver/receiver/badge per day.
type BadgeGift struct {
	Base
	GiverID    string    `gorm:"uniqueIndex:idx_badge_gift_day,priority:1;not null" json:"giver_id"`
	ReceiverID string    `gorm:"uniqueIndex:idx_badge_gift_day,priority:2;not null;index" json:"receiver_id"`
	BadgeID    string    `gorm:"uniqueIndex:idx_badge_gift_day,priority:3;not null" json:"badge_id"`
	GivenOn    string    `gorm:"uniqueIndex:idx_badge_gift_day,priority:4;type:varchar(10);not null" json:"given_on"` // YYYY-MM-DD
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DefaultBadges is the starter catalog seeded into an empty badges table.
var DefaultBadges = []struct {
	Badge    Badge
	Criteria BadgeCriteria
}{
	{
		Badge:    Badge{Code: "FIRST_TASK", Name: "Getting Started", Description: "Completed your first task", Rarity: RarityCommon, Category: "tasks"},
		Criteria: BadgeCriteria{Type: CriteriaCount, Value: 1, Description: "task completed"},
	},
	{
		Badge:    Badge{Code: "TASK_MASTER", Name: "Task Master", Description: "Completed 50 tasks", Rarity: RarityRare, Category: "tasks"},
		Criteria: BadgeCriteria{Type: CriteriaCount, Value: 50, Description: "task completed"},
	},
	{
		Badge:    Badge{Code: "REPORTER", Name: "Reporter", Description: "Filed 10 reports", Rarity: RarityCommon, Category: "reports"},
		Criteria: BadgeCriteria{Type: CriteriaCount, Value: 10, Description: "report filed"},
	},
	{
		Badge:    Badge{Code: "LIFELONG_LEARNER", Name: "Lifelong Learner", Description: "Finished 5 trainings", Rarity: RarityRare, Category: "training"},
		Criteria: BadgeCriteria{Type: CriteriaCombo, Value: 5, Description: "training completed"},
	},
	{
		Badge:    Badge{Code: "POINTS_500", Name: "Rising Star", Description: "Earned 500 points", Rarity: RarityEpic, Category: "points"},
		Criteria: BadgeCriteria{Type: CriteriaThreshold, Value: 500, Description: "total points"},
	},
	{
		Badge:    Badge{Code: "POINTS_10000", Name: "Legend", Description: "Earned 10,000 points", Rarity: RarityLegendary, Category: "points"},
		Criteria: BadgeCriteria{Type: CriteriaThreshold, Value: 10000, Description: "total points"},
	},
	{
		Badge:    Badge{Code: "TEAM_PLAYER", Name: "Team Player", Description: "Recognized by a colleague", Rarity: RarityCommon, Category: "social", SocialBadge: true},
		Criteria: BadgeCriteria{Type: CriteriaCount, Value: 1, Description: "peer recognition"},
	},
}
