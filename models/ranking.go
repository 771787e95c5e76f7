package models

import "time"

type RankingType string

const (
	RankingWeekly  RankingType = "weekly"
	RankingMonthly RankingType = "monthly"
	RankingAllTime RankingType = "all-time"
)

// Ranking is a point-in-time leaderboard snapshot row, recomputable from the ledger.
type Ranking struct {
	Base
	Type        RankingType `gorm:"type:varchar(16);index:idx_ranking_period,priority:1;not null" json:"type"`
	PeriodStart time.Time   `gorm:"index:idx_ranking_period,priority:2" json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
	UserID      string      `gorm:"index;not null" json:"user_id"`
	Points      int64       `json:"points"`
	Position    int         `gorm:"index:idx_ranking_period,priority:3" json:"position"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
