package models

import (
	"time"
)

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// RewardItem is something users can buy with currency.
type RewardItem struct {
	Base
	Title    string `gorm:"not null" json:"title"`
	Excerpt  string `gorm:"type:text" json:"excerpt"`
	ImageURL string `gorm:"type:text" json:"image_url"`
	Emoji    string `gorm:"size:10" json:"emoji"`
	Category string `gorm:"type:varchar(32)" json:"category"`
	Cost     int64  `gorm:"not null" json:"cost"`
	// Stock is nil for unlimited items.
	Stock      *int       `json:"stock,omitempty"`
	Active     bool       `gorm:"not null;index" json:"active"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Timestamps
}

// RewardRedemption records a currency spend on a RewardItem.
type RewardRedemption struct {
	Base
	UserID        string           `gorm:"index;not null" json:"user_id"`
	RewardID      string           `gorm:"index;not null" json:"reward_id"`
	Reward        *RewardItem      `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
	Cost          int64            `gorm:"not null" json:"cost"`
	TransactionID string           `json:"transaction_id"`
	Status        RedemptionStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Timestamps
}
