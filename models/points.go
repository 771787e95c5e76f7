package models

import (
	"time"

	"gorm.io/datatypes"
)

// Point sources written by the engine itself. Everything else comes from callers.
const (
	SourceBadgeEarned      = "badge_earned"
	SourceStreakMilestone  = "streak_milestone"
	SourceChallengeReward  = "challenge_reward"
	SourcePeerRecognition  = "peer_recognition"
	SourceManualAdjustment = "manual_adjustment"
)

// PointEntry is one immutable row of the points ledger.
type PointEntry struct {
	Base
	UserID      string         `gorm:"index;not null;uniqueIndex:idx_point_user_event,priority:1" json:"user_id"`
	Amount      int64          `gorm:"not null" json:"amount"`
	Source      string         `gorm:"type:varchar(64);index;not null" json:"source"`
	Description string         `json:"description"`
	Audited     bool           `gorm:"default:false" json:"audited"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	// EventID is the caller's idempotency key; nil disables deduplication.
	EventID   *string   `gorm:"type:varchar(128);uniqueIndex:idx_point_user_event,priority:2" json:"event_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// GamificationConfig maps an action (optionally scoped to a department) to base points.
// An empty Department is the global default for the action.
type GamificationConfig struct {
	Base
	Department  string            `gorm:"type:varchar(64);uniqueIndex:idx_config_dept_action,priority:1;not null;default:''" json:"department"`
	Action      string            `gorm:"type:varchar(64);uniqueIndex:idx_config_dept_action,priority:2;not null" json:"action"`
	BasePoints  int64             `gorm:"not null" json:"base_points"`
	Multipliers datatypes.JSONMap `json:"multipliers,omitempty"`
	Active      bool              `gorm:"not null" json:"active"`
	Timestamps
}

// Level is static reference data: the points needed to reach a level.
type Level struct {
	Base
	Level          int   `gorm:"uniqueIndex;not null" json:"level"`
	PointsRequired int64 `gorm:"not null" json:"points_required"`
}

// UserProfile holds per-user progression state that can't be derived from the ledger.
type UserProfile struct {
	Base
	UserID         string     `gorm:"uniqueIndex;not null" json:"user_id"`
	LastKnownLevel int        `gorm:"default:0" json:"last_known_level"`
	LastLevelUpAt  *time.Time `json:"last_level_up_at,omitempty"`
	Timestamps
}
