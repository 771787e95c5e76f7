package models

import (
	"time"

	"gorm.io/datatypes"
)

type ChallengeStatus string

const (
	ChallengeUpcoming ChallengeStatus = "upcoming"
	ChallengeActive   ChallengeStatus = "active"
	ChallengeEnded    ChallengeStatus = "ended"
)

// Challenge is a time-boxed set of objectives, team-based or individual.
type Challenge struct {
	Base
	Title              string                      `gorm:"not null" json:"title"`
	Description        string                      `gorm:"type:text" json:"description"`
	Objectives         []ChallengeObjective        `gorm:"foreignKey:ChallengeID" json:"objectives"`
	RewardPoints       int64                       `gorm:"default:0" json:"reward_points"`
	RewardCurrency     int64                       `gorm:"default:0" json:"reward_currency"`
	RewardBadgeIDs     datatypes.JSONSlice[string] `json:"reward_badge_ids,omitempty"`
	TeamBased          bool                        `gorm:"default:false" json:"team_based"`
	Teams              []ChallengeTeam             `gorm:"foreignKey:ChallengeID" json:"participating_teams,omitempty"`
	Status             ChallengeStatus             `gorm:"type:varchar(16);default:'upcoming';index" json:"status"`
	StartsAt           time.Time                   `json:"starts_at"`
	EndsAt             time.Time                   `gorm:"index" json:"ends_at"`
	RewardsDistributed bool                        `gorm:"default:false" json:"rewards_distributed"`
	DistributedAt      *time.Time                  `json:"distributed_at,omitempty"`
	Timestamps
}

// ChallengeObjective: Position is the objective index used in progress records.
type ChallengeObjective struct {
	Base
	ChallengeID string `gorm:"index;not null" json:"challenge_id"`
	Position    int    `gorm:"not null" json:"position"`
	Type        string `gorm:"type:varchar(64);not null" json:"type"` // e.g. "task_completed"
	Target      int64  `gorm:"not null" json:"target"`
	Description string `json:"description"`
}

// ChallengeTeam lists the teams taking part in a team challenge.
type ChallengeTeam struct {
	Base
	ChallengeID string    `gorm:"uniqueIndex:idx_challenge_team,priority:1;not null" json:"challenge_id"`
	TeamID      string    `gorm:"uniqueIndex:idx_challenge_team,priority:2;not null" json:"team_id"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// ObjectiveProgress is stored as JSON on team and participant progress rows.
type ObjectiveProgress struct {
	ObjectiveIndex int   `json:"objective_index"`
	Current        int64 `json:"current"`
	Completed      bool  `json:"completed"`
}

// ChallengeTeamProgress: TotalProgress == sum(Progress[i].Current),
// Completed == AND(Progress[i].Completed).
type ChallengeTeamProgress struct {
	Base
	ChallengeID   string                                 `gorm:"uniqueIndex:idx_challenge_team_progress,priority:1;not null" json:"challenge_id"`
	TeamID        string                                 `gorm:"uniqueIndex:idx_challenge_team_progress,priority:2;not null" json:"team_id"`
	Progress      datatypes.JSONSlice[ObjectiveProgress] `json:"progress"`
	TotalProgress int64                                  `gorm:"default:0" json:"total_progress"`
	Completed     bool                                   `gorm:"default:false" json:"completed"`
	CompletedAt   *time.Time                             `json:"completed_at,omitempty"`
	Rank          *int                                   `json:"rank,omitempty"`
	Version       int64                                  `gorm:"default:0" json:"-"`
	Timestamps
}

// ChallengeParticipant is individual progress in a non-team challenge.
type ChallengeParticipant struct {
	Base
	ChallengeID   string                                 `gorm:"uniqueIndex:idx_challenge_participant,priority:1;not null" json:"challenge_id"`
	UserID        string                                 `gorm:"uniqueIndex:idx_challenge_participant,priority:2;not null" json:"user_id"`
	Progress      datatypes.JSONSlice[ObjectiveProgress] `json:"progress"`
	TotalProgress int64                                  `gorm:"default:0" json:"total_progress"`
	Completed     bool                                   `gorm:"default:false" json:"completed"`
	CompletedAt   *time.Time                             `json:"completed_at,omitempty"`
	Version       int64                                  `gorm:"default:0" json:"-"`
	Timestamps
}

// ChallengeProgressEvent records an activity event already counted towards a
// challenge, so a re-delivered event doesn't advance progress twice.
type ChallengeProgressEvent struct {
	Base
	ChallengeID string    `gorm:"uniqueIndex:idx_challenge_progress_event,priority:1;not null" json:"challenge_id"`
	EventID     string    `gorm:"uniqueIndex:idx_challenge_progress_event,priority:2;type:varchar(128);not null" json:"event_id"`
	SubjectID   string    `gorm:"not null" json:"subject_id"` // team or user the event was applied to
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
