package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AwardInput describes one grant (or deduction, when Amount < 0) of points.
type AwardInput struct {
	UserID      string
	Amount      int64
	Source      string
	Description string
	Metadata    map[string]interface{}
	// EventID makes the award idempotent per user. Empty means no deduplication.
	EventID string
}

// AwardResult reports everything one Award call caused.
type AwardResult struct {
	Entry     *models.PointEntry `json:"entry"`
	Duplicate bool               `json:"duplicate"`
	Skipped   bool               `json:"skipped,omitempty"`
	NewBadges []models.Badge     `json:"new_badges,omitempty"`
	LevelUp   *LevelUpResult     `json:"level_up,omitempty"`
}

// BadgeEvaluator runs after every award for the acting user.
type BadgeEvaluator interface {
	EvaluateBadges(ctx context.Context, userID string) ([]models.Badge, error)
}

// LevelChecker runs after badge evaluation for the acting user.
type LevelChecker interface {
	CheckLevelUp(ctx context.Context, userID string) (*LevelUpResult, error)
}

// LiveCounter mirrors awards into a derived, eventually consistent store.
type LiveCounter interface {
	IncrementPoints(ctx context.Context, userID string, delta int64) error
	GetTotal(ctx context.Context, userID string) (int64, bool, error)
	SetTotal(ctx context.Context, userID string, total int64) error
}

type PointsService struct {
	DB     *gorm.DB
	Config *ConfigService
	Live   LiveCounter

	badges BadgeEvaluator
	levels LevelChecker
}

func NewPointsService(db *gorm.DB, cfg *ConfigService) *PointsService {
	return &PointsService{DB: db, Config: cfg}
}

// UseCascade wires the post-award triggers. Either may be nil.
func (s *PointsService) UseCascade(badges BadgeEvaluator, levels LevelChecker) {
	s.badges = badges
	s.levels = levels
}

// Award appends a ledger entry, then evaluates badges and levels for the user.
// The entry is kept even when a later cascade step fails; the error is returned
// alongside the partial result.
func (s *PointsService) Award(ctx context.Context, in AwardInput) (*AwardResult, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.Source) == "" {
		return nil, fmt.Errorf("%w: user and source are required", ErrInvalidInput)
	}

	entry := models.PointEntry{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Source:      in.Source,
		Description: in.Description,
	}
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidInput, err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}

	db := s.DB.WithContext(ctx)
	if in.EventID != "" {
		eventID := in.EventID
		entry.EventID = &eventID
		db = db.Clauses(clause.OnConflict{DoNothing: true})
	}

	res := db.Create(&entry)
	if res.Error != nil {
		return nil, fmt.Errorf("append point entry: %w", res.Error)
	}
	if entry.EventID != nil && res.RowsAffected == 0 {
		var existing models.PointEntry
		if err := s.DB.WithContext(ctx).
			Where("user_id = ? AND event_id = ?", in.UserID, in.EventID).
			First(&existing).Error; err != nil {
			return nil, fmt.Errorf("load duplicate point entry: %w", err)
		}
		utils.LogDebug("🔁 Duplicate award ignored: user=%s event=%s", in.UserID, in.EventID)
		return &AwardResult{Entry: &existing, Duplicate: true}, nil
	}

	utils.LogInfo("🪙 Points awarded: %s %+d (source: %s)", in.UserID, in.Amount, in.Source)

	if s.Live != nil {
		if err := s.Live.IncrementPoints(ctx, in.UserID, in.Amount); err != nil {
			utils.LogWarn("⚠️ Live leaderboard update failed for %s: %v", in.UserID, err)
		}
	}

	result := &AwardResult{Entry: &entry}

	if s.badges != nil {
		depth := cascadeDepth(ctx)
		if depth >= MaxCascadeDepth {
			utils.LogWarn("⛔ Cascade depth %d reached for %s, skipping badge evaluation", depth, in.UserID)
		} else {
			badges, err := s.badges.EvaluateBadges(withCascadeDepth(ctx, depth+1), in.UserID)
			result.NewBadges = badges
			if err != nil {
				return result, fmt.Errorf("evaluate badges after award: %w", err)
			}
		}
	}

	if s.levels != nil {
		lu, err := s.levels.CheckLevelUp(ctx, in.UserID)
		if err != nil {
			return result, fmt.Errorf("check level after award: %w", err)
		}
		if lu != nil && lu.LeveledUp {
			result.LevelUp = lu
		}
	}

	return result, nil
}

// ActionAward awards the configured value of a platform action.
type ActionAward struct {
	UserID        string
	Action        string
	Department    *string
	MultiplierKey string
	Description   string
	Metadata      map[string]interface{}
	EventID       string
}

// AwardForAction resolves the action's worth and awards it. Zero-point actions are skipped.
func (s *PointsService) AwardForAction(ctx context.Context, in ActionAward) (*AwardResult, error) {
	if s.Config == nil {
		return nil, errors.New("points service has no config resolver")
	}
	amount, err := s.Config.ResolveAward(ctx, in.Action, in.Department, in.MultiplierKey)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return &AwardResult{Skipped: true}, nil
	}
	desc := in.Description
	if desc == "" {
		desc = strings.ReplaceAll(in.Action, "_", " ")
	}
	return s.Award(ctx, AwardInput{
		UserID:      in.UserID,
		Amount:      amount,
		Source:      in.Action,
		Description: desc,
		Metadata:    in.Metadata,
		EventID:     in.EventID,
	})
}

// GetTotal sums the full ledger for the user. It is never cached.
func (s *PointsService) GetTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.DB.WithContext(ctx).
		Model(&models.PointEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum points for %s: %w", userID, err)
	}
	return total, nil
}

// CachedTotal serves the user's total from the live counter when it holds one,
// otherwise sums the ledger and primes the counter. cached reports the source.
func (s *PointsService) CachedTotal(ctx context.Context, userID string) (total int64, cached bool, err error) {
	if s.Live != nil {
		total, ok, err := s.Live.GetTotal(ctx, userID)
		if err == nil && ok {
			return total, true, nil
		}
		if err != nil {
			utils.LogWarn("⚠️ Live total unavailable for %s, reading ledger: %v", userID, err)
		}
	}

	total, err = s.GetTotal(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if s.Live != nil {
		if err := s.Live.SetTotal(ctx, userID, total); err != nil {
			utils.LogWarn("⚠️ Live total refresh failed for %s: %v", userID, err)
		}
	}
	return total, false, nil
}

// CountBySource counts ledger rows with the given source tag.
func (s *PointsService) CountBySource(ctx context.Context, userID, source string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&models.PointEntry{}).
		Where("user_id = ? AND source = ?", userID, source).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s entries for %s: %w", source, userID, err)
	}
	return n, nil
}

// GetPointsConfig delegates to the config resolver.
func (s *PointsService) GetPointsConfig(ctx context.Context, action string, department *string) (int64, error) {
	return s.Config.GetPointsConfig(ctx, action, department)
}

type PointsHistory struct {
	Entries    []models.PointEntry `json:"entries"`
	Page       int                 `json:"page"`
	Size       int                 `json:"size"`
	TotalItems int64               `json:"total_items"`
	TotalPages int                 `json:"total_pages"`
}

// GetHistory returns the user's ledger, newest first.
func (s *PointsService) GetHistory(ctx context.Context, userID string, page, size int) (*PointsHistory, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	q := s.DB.WithContext(ctx).Model(&models.PointEntry{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var entries []models.PointEntry
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	return &PointsHistory{
		Entries:    entries,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}
