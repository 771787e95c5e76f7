package models

import (
	"time"
)

// TeamMember is a local snapshot of team membership.
// Owned by the collaboration platform, populated via the team sync worker.
type TeamMember struct {
	Base
	TeamID    string    `gorm:"uniqueIndex:idx_team_member,priority:1;not null" json:"team_id"`
	UserID    string    `gorm:"uniqueIndex:idx_team_member,priority:2;not null;index" json:"user_id"`
	Role      string    `gorm:"type:varchar(32)" json:"role,omitempty"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
