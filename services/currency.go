package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultConversionRate is how many points buy one unit of currency.
const DefaultConversionRate int64 = 10

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type TransactionInput struct {
	UserID      string
	Type        models.TransactionType
	Amount      int64
	Source      string
	Description string
	Metadata    map[string]interface{}
}

type CurrencyService struct {
	DB          *gorm.DB
	DefaultRate int64
}

func NewCurrencyService(db *gorm.DB, rate int64) *CurrencyService {
	if rate <= 0 {
		rate = DefaultConversionRate
	}
	return &CurrencyService{DB: db, DefaultRate: rate}
}

// AddTransaction moves the balance and appends the history row atomically.
// Spends larger than the balance are clamped to zero; the effective debit is
// what gets recorded. Callers needing insufficient-funds errors use Spend.
func (s *CurrencyService) AddTransaction(ctx context.Context, in TransactionInput) (*models.CurrencyTransaction, error) {
	return s.apply(ctx, in, false)
}

// Spend debits the balance or fails with ErrInsufficientFunds.
func (s *CurrencyService) Spend(ctx context.Context, in TransactionInput) (*models.CurrencyTransaction, error) {
	in.Type = models.TransactionSpend
	return s.apply(ctx, in, true)
}

func (s *CurrencyService) apply(ctx context.Context, in TransactionInput, strict bool) (*models.CurrencyTransaction, error) {
	if in.UserID == "" || in.Amount <= 0 {
		return nil, fmt.Errorf("%w: user and a positive amount are required", ErrInvalidInput)
	}
	if in.Type != models.TransactionEarn && in.Type != models.TransactionSpend {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, in.Type)
	}

	var meta datatypes.JSON
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidInput, err)
		}
		meta = datatypes.JSON(raw)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := s.loadOrCreate(ctx, in.UserID)
		if err != nil {
			return nil, err
		}

		effective := in.Amount
		next := *cur
		if in.Type == models.TransactionEarn {
			next.Balance += effective
			next.TotalEarned += effective
		} else {
			if effective > cur.Balance {
				if strict {
					return nil, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, cur.Balance, in.Amount)
				}
				effective = cur.Balance
			}
			next.Balance -= effective
			next.TotalSpent += effective
		}

		txn := models.CurrencyTransaction{
			UserID:          in.UserID,
			Type:            in.Type,
			Amount:          effective,
			RequestedAmount: in.Amount,
			BalanceAfter:    next.Balance,
			Source:          in.Source,
			Description:     in.Description,
			Metadata:        meta,
		}

		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Currency{}).
				Where("id = ? AND version = ?", cur.ID, cur.Version).
				Updates(map[string]interface{}{
					"balance":      next.Balance,
					"total_earned": next.TotalEarned,
					"total_spent":  next.TotalSpent,
					"version":      cur.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			return tx.Create(&txn).Error
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record %s transaction for %s: %w", in.Type, in.UserID, err)
		}

		utils.LogInfo("💰 Currency %s: %s %d (requested %d) → balance %d", in.Type, in.UserID, effective, in.Amount, next.Balance)
		return &txn, nil
	}
	return nil, fmt.Errorf("currency update for %s: %w", in.UserID, ErrConcurrentUpdate)
}

func (s *CurrencyService) loadOrCreate(ctx context.Context, userID string) (*models.Currency, error) {
	var cur models.Currency
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cur).Error
	if err == nil {
		return &cur, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load currency for %s: %w", userID, err)
	}

	cur = models.Currency{UserID: userID}
	if err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&cur).Error; err != nil {
		return nil, fmt.Errorf("create currency for %s: %w", userID, err)
	}
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cur).Error; err != nil {
		return nil, err
	}
	return &cur, nil
}

// GetBalance returns the user's currency record; a user with no activity has a zero balance.
func (s *CurrencyService) GetBalance(ctx context.Context, userID string) (*models.Currency, error) {
	var cur models.Currency
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Currency{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cur, nil
}

// GetTransactionHistory pages through the user's transactions, newest first.
func (s *CurrencyService) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]models.CurrencyTransaction, int64, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.CurrencyTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.CurrencyTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&txns).Error
	return txns, total, err
}

type ConversionResult struct {
	PointsConverted int64                       `json:"points_converted"`
	Rate            int64                       `json:"rate"`
	CurrencyEarned  int64                       `json:"currency_earned"`
	Transaction     *models.CurrencyTransaction `json:"transaction"`
}

// ConvertPointsToCurrency credits floor(points/rate) currency.
// Points are a permanent score: the ledger is not debited, so the same
// points can be converted again.
func (s *CurrencyService) ConvertPointsToCurrency(ctx context.Context, userID string, points, rate int64) (*ConversionResult, error) {
	if rate <= 0 {
		rate = s.DefaultRate
	}
	earned := points / rate
	if points <= 0 || earned <= 0 {
		return nil, fmt.Errorf("%w: %d points at rate %d", ErrNothingToConvert, points, rate)
	}

	txn, err := s.AddTransaction(ctx, TransactionInput{
		UserID:      userID,
		Type:        models.TransactionEarn,
		Amount:      earned,
		Source:      "points_conversion",
		Description: fmt.Sprintf("Converted %d points", points),
		Metadata:    map[string]interface{}{"points": points, "rate": rate},
	})
	if err != nil {
		return nil, err
	}
	return &ConversionResult{PointsConverted: points, Rate: rate, CurrencyEarned: earned, Transaction: txn}, nil
}

// PruneHistory keeps the newest keep transactions per user and drops the rest.
// Balances are maintained separately and are not touched.
func (s *CurrencyService) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Exec(`
		DELETE FROM currency_transactions WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY created_at DESC, id DESC) AS rn
				FROM currency_transactions
			) ranked WHERE rn > ?
		)`, keep)
	if res.Error != nil {
		return 0, fmt.Errorf("prune currency history: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		utils.LogInfo("🧹 Pruned %d currency transaction(s), keeping %d per user", res.RowsAffected, keep)
	}
	return res.RowsAffected, nil
}
