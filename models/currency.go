// models/currency.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionEarn  TransactionType = "earn"
	TransactionSpend TransactionType = "spend"
)

// Currency is the denormalized spendable balance of a user.
// Balance == TotalEarned - TotalSpent at all times.
type Currency struct {
	Base
	UserID      string `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance     int64  `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	TotalEarned int64  `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent  int64  `gorm:"not null;default:0" json:"total_spent"`
	Version     int64  `gorm:"default:0" json:"-"`
	Timestamps
}

// CurrencyTransaction is one durable row of the currency history.
// Amount is what actually moved the balance; RequestedAmount is what the
// caller asked for (they differ when a spend is clamped at zero).
type CurrencyTransaction struct {
	Base
	UserID          string          `gorm:"index:idx_currency_tx_user_created,priority:1;not null" json:"user_id"`
	Type            TransactionType `gorm:"type:varchar(8);not null" json:"type"`
	Amount          int64           `gorm:"not null" json:"amount"`
	RequestedAmount int64           `gorm:"not null" json:"requested_amount"`
	BalanceAfter    int64           `gorm:"not null" json:"balance_after"`
	Source          string          `gorm:"type:varchar(64)" json:"source"`
	Description     string          `json:"description"`
	Metadata        datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index:idx_currency_tx_user_created,priority:2" json:"created_at"`
}
