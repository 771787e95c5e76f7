// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/gorm"
)

// RewardService is the currency spend catalog.
type RewardService struct {
	DB       *gorm.DB
	Currency *CurrencyService
}

func NewRewardService(db *gorm.DB, currency *CurrencyService) *RewardService {
	return &RewardService{DB: db, Currency: currency}
}

func (s *RewardService) CreateReward(ctx context.Context, r *models.RewardItem) error {
	if strings.TrimSpace(r.Title) == "" || r.Cost <= 0 {
		return fmt.Errorf("%w: title and a positive cost are required", ErrInvalidInput)
	}
	if r.Stock != nil && *r.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
	}
	return s.DB.WithContext(ctx).Create(r).Error
}

func (s *RewardService) ListRewards(ctx context.Context, activeOnly bool) ([]models.RewardItem, error) {
	q := s.DB.WithContext(ctx).Order("cost ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.RewardItem
	err := q.Find(&out).Error
	return out, err
}

func (s *RewardService) SetActive(ctx context.Context, rewardID string, active bool) error {
	res := s.DB.WithContext(ctx).Model(&models.RewardItem{}).Where("id = ?", rewardID).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: reward %s", ErrNotFound, rewardID)
	}
	return nil
}

// RedeemReward spends currency on a reward. The balance is pre-checked so the
// user gets ErrInsufficientFunds instead of a clamped spend; limited stock is
// decremented with a conditional update and restored if the spend fails.
func (s *RewardService) RedeemReward(ctx context.Context, userID, rewardID string) (*models.RewardRedemption, error) {
	var reward models.RewardItem
	if err := s.DB.WithContext(ctx).Where("id = ?", rewardID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reward %s", ErrNotFound, rewardID)
		}
		return nil, err
	}
	if !reward.Active || (reward.ExpiryDate != nil && reward.ExpiryDate.Before(time.Now())) {
		return nil, ErrRewardInactive
	}
	if reward.Stock != nil && *reward.Stock <= 0 {
		return nil, ErrOutOfStock
	}

	bal, err := s.Currency.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bal.Balance < reward.Cost {
		return nil, fmt.Errorf("%w: balance %d, cost %d", ErrInsufficientFunds, bal.Balance, reward.Cost)
	}

	if reward.Stock != nil {
		res := s.DB.WithContext(ctx).Model(&models.RewardItem{}).
			Where("id = ? AND stock > 0", reward.ID).
			Update("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrOutOfStock
		}
	}

	txn, err := s.Currency.Spend(ctx, TransactionInput{
		UserID:      userID,
		Amount:      reward.Cost,
		Source:      "reward_redemption",
		Description: "Redeemed " + reward.Title,
		Metadata:    map[string]interface{}{"reward_id": reward.ID},
	})
	if err != nil {
		if reward.Stock != nil {
			if rerr := s.DB.WithContext(ctx).Model(&models.RewardItem{}).
				Where("id = ?", reward.ID).
				Update("stock", gorm.Expr("stock + 1")).Error; rerr != nil {
				utils.LogError("❌ Failed to restore stock for reward %s: %v", reward.ID, rerr)
			}
		}
		return nil, err
	}

	redemption := models.RewardRedemption{
		UserID:        userID,
		RewardID:      reward.ID,
		Cost:          reward.Cost,
		TransactionID: txn.ID,
		Status:        models.RedemptionPending,
	}
	if err := s.DB.WithContext(ctx).Create(&redemption).Error; err != nil {
		return nil, fmt.Errorf("record redemption: %w", err)
	}

	utils.LogSuccess("🎁 Reward redeemed: %s → %s (%d)", reward.Title, userID, reward.Cost)
	return &redemption, nil
}

func (s *RewardService) ListRedemptions(ctx context.Context, userID string) ([]models.RewardRedemption, error) {
	var out []models.RewardRedemption
	err := s.DB.WithContext(ctx).
		Preload("Reward").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
