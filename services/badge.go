package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RarityBonus is the points bonus granted with a newly earned badge.
var RarityBonus = map[models.BadgeRarity]int64{
	models.RarityCommon:    10,
	models.RarityRare:      50,
	models.RarityEpic:      150,
	models.RarityLegendary: 500,
}

// Ledger is the slice of the points ledger the badge evaluator needs.
type Ledger interface {
	Award(ctx context.Context, in AwardInput) (*AwardResult, error)
	GetTotal(ctx context.Context, userID string) (int64, error)
	CountBySource(ctx context.Context, userID, source string) (int64, error)
}

type BadgeService struct {
	DB       *gorm.DB
	Ledger   Ledger
	Events   EventEmitter
	Config   *ConfigService
	Location *time.Location
}

func NewBadgeService(db *gorm.DB, ledger Ledger, events EventEmitter, cfg *ConfigService) *BadgeService {
	return &BadgeService{DB: db, Ledger: ledger, Events: events, Config: cfg, Location: time.UTC}
}

// CriteriaSourceTag is the PointEntry source counted by a count/combo criteria:
// the explicit tag, or the description slugified with underscores
// ("task completed" -> "task_completed").
func CriteriaSourceTag(c models.BadgeCriteria) string {
	if c.SourceTag != "" {
		return c.SourceTag
	}
	return strings.ReplaceAll(slug.Make(c.Description), "-", "_")
}

// EvaluateBadges checks every active badge the user doesn't hold yet, stores
// per-user progress and grants the ones whose criteria are met.
func (s *BadgeService) EvaluateBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	held := s.DB.Model(&models.UserBadge{}).Select("badge_id").Where("user_id = ?", userID)

	var candidates []models.Badge
	if err := s.DB.WithContext(ctx).
		Preload("Criteria").
		Where("active = ?", true).
		Where("id NOT IN (?)", held).
		Order("created_at ASC").
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("load candidate badges: %w", err)
	}

	var earned []models.Badge
	for _, badge := range candidates {
		if badge.Criteria == nil {
			continue
		}

		progress, err := s.progressFor(ctx, userID, *badge.Criteria)
		if err != nil {
			return earned, err
		}
		if err := s.saveProgress(ctx, userID, badge.ID, progress); err != nil {
			return earned, err
		}
		if progress < badge.Criteria.Value {
			continue
		}

		granted, err := s.grant(ctx, userID, badge, "criteria")
		if granted {
			earned = append(earned, badge)
		}
		if err != nil {
			return earned, err
		}
	}
	return earned, nil
}

func (s *BadgeService) progressFor(ctx context.Context, userID string, c models.BadgeCriteria) (int64, error) {
	switch c.Type {
	case models.CriteriaCount, models.CriteriaCombo:
		return s.Ledger.CountBySource(ctx, userID, CriteriaSourceTag(c))
	case models.CriteriaThreshold:
		return s.Ledger.GetTotal(ctx, userID)
	default:
		return 0, fmt.Errorf("%w: unknown criteria type %q", ErrInvalidInput, c.Type)
	}
}

func (s *BadgeService) saveProgress(ctx context.Context, userID, badgeID string, progress int64) error {
	row := models.UserBadgeProgress{UserID: userID, BadgeID: badgeID, Progress: progress}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save badge progress %s/%s: %w", userID, badgeID, err)
	}
	return nil
}

// grant inserts the UserBadge; only the caller whose insert lands awards the
// rarity bonus. A failed bonus leaves the badge in place and returns the error.
func (s *BadgeService) grant(ctx context.Context, userID string, badge models.Badge, source string) (bool, error) {
	ub := models.UserBadge{UserID: userID, BadgeID: badge.ID, Source: source}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ub)
	if res.Error != nil {
		return false, fmt.Errorf("create user badge %s/%s: %w", userID, badge.Code, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	utils.LogSuccess("🎖️ Badge awarded: %s → %s", badge.Name, userID)

	if s.Events != nil {
		title := fmt.Sprintf("%s badge earned: %s", rarityLabel(badge.Rarity), badge.Name)
		payload := map[string]interface{}{"badge_id": badge.ID, "code": badge.Code, "rarity": badge.Rarity, "icon_url": badge.IconURL}
		if err := s.Events.Emit(ctx, userID, models.EventBadgeEarned, title, payload); err != nil {
			utils.LogWarn("⚠️ Failed to record badge_earned event for %s: %v", userID, err)
		}
	}

	bonus, ok := RarityBonus[badge.Rarity]
	if !ok {
		bonus = RarityBonus[models.RarityCommon]
	}
	if _, err := s.Ledger.Award(ctx, AwardInput{
		UserID:      userID,
		Amount:      bonus,
		Source:      models.SourceBadgeEarned,
		Description: "Badge earned: " + badge.Name,
		Metadata:    map[string]interface{}{"badge_id": badge.ID, "rarity": badge.Rarity},
		EventID:     "badge_bonus:" + badge.ID,
	}); err != nil {
		return true, fmt.Errorf("award %s bonus for badge %s: %w", badge.Rarity, badge.Code, err)
	}
	return true, nil
}

// GrantBadge gives a badge directly (challenge rewards, admin grants).
// It reports whether the user didn't hold it before.
func (s *BadgeService) GrantBadge(ctx context.Context, userID, badgeID, source string) (bool, error) {
	var badge models.Badge
	if err := s.DB.WithContext(ctx).Where("id = ?", badgeID).First(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: badge %s", ErrNotFound, badgeID)
		}
		return false, err
	}
	return s.grant(ctx, userID, badge, source)
}

// GiveBadge is peer recognition: a user hands a social badge to a colleague,
// at most once per giver/receiver/badge per day.
func (s *BadgeService) GiveBadge(ctx context.Context, giverID, receiverID, badgeID, message string, now time.Time) (*models.BadgeGift, error) {
	if giverID == "" || receiverID == "" {
		return nil, fmt.Errorf("%w: giver and receiver are required", ErrInvalidInput)
	}
	if giverID == receiverID {
		return nil, ErrSelfRecognition
	}

	var badge models.Badge
	if err := s.DB.WithContext(ctx).Where("id = ? AND active = ?", badgeID, true).First(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: badge %s", ErrNotFound, badgeID)
		}
		return nil, err
	}
	if !badge.SocialBadge {
		return nil, ErrNotSocialBadge
	}

	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	gift := models.BadgeGift{
		GiverID:    giverID,
		ReceiverID: receiverID,
		BadgeID:    badgeID,
		GivenOn:    now.In(loc).Format("2006-01-02"),
		Message:    message,
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&gift)
	if res.Error != nil {
		return nil, fmt.Errorf("record badge gift: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicateBadgeGift
	}

	if s.Config != nil {
		points, err := s.Config.GetPointsConfig(ctx, models.SourcePeerRecognition, nil)
		if err != nil {
			return &gift, err
		}
		if points != 0 {
			if _, err := s.Ledger.Award(ctx, AwardInput{
				UserID:      receiverID,
				Amount:      points,
				Source:      models.SourcePeerRecognition,
				Description: fmt.Sprintf("Recognized with %s", badge.Name),
				Metadata:    map[string]interface{}{"giver_id": giverID, "badge_id": badgeID},
				EventID:     "gift:" + gift.ID,
			}); err != nil {
				return &gift, err
			}
		}
	}

	if _, err := s.grant(ctx, receiverID, badge, models.SourcePeerRecognition); err != nil {
		return &gift, err
	}
	return &gift, nil
}

// CreateBadge stores a badge with its criteria. An empty code is derived from the name.
func (s *BadgeService) CreateBadge(ctx context.Context, badge *models.Badge, criteria *models.BadgeCriteria) error {
	if strings.TrimSpace(badge.Name) == "" || criteria == nil || criteria.Value <= 0 {
		return fmt.Errorf("%w: badge name and a positive criteria value are required", ErrInvalidInput)
	}
	switch criteria.Type {
	case models.CriteriaCount, models.CriteriaThreshold, models.CriteriaCombo:
	default:
		return fmt.Errorf("%w: unknown criteria type %q", ErrInvalidInput, criteria.Type)
	}
	if _, ok := RarityBonus[badge.Rarity]; !ok {
		badge.Rarity = models.RarityCommon
	}
	if badge.Code == "" {
		badge.Code = strings.ToUpper(strings.ReplaceAll(slug.Make(badge.Name), "-", "_"))
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(criteria).Error; err != nil {
			return err
		}
		badge.CriteriaID = &criteria.ID
		badge.Criteria = nil
		if err := tx.Create(badge).Error; err != nil {
			return err
		}
		badge.Criteria = criteria
		return nil
	})
}

// SeedDefaultBadges installs the starter catalog when no badges exist.
func (s *BadgeService) SeedDefaultBadges(ctx context.Context) (int, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Badge{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	for _, d := range models.DefaultBadges {
		badge, criteria := d.Badge, d.Criteria
		badge.Active = true
		if err := s.CreateBadge(ctx, &badge, &criteria); err != nil {
			return 0, fmt.Errorf("seed badge %s: %w", badge.Code, err)
		}
	}
	utils.LogSuccess("🎖️ Seeded %d default badges", len(models.DefaultBadges))
	return len(models.DefaultBadges), nil
}

func (s *BadgeService) SetIcon(ctx context.Context, badgeID, iconURL string) error {
	res := s.DB.WithContext(ctx).Model(&models.Badge{}).Where("id = ?", badgeID).Update("icon_url", iconURL)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: badge %s", ErrNotFound, badgeID)
	}
	return nil
}

func (s *BadgeService) ListBadges(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := s.DB.WithContext(ctx).Preload("Criteria").Where("active = ?", true).Order("category ASC, name ASC").Find(&badges).Error
	return badges, err
}

func (s *BadgeService) ListUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var out []models.UserBadge
	err := s.DB.WithContext(ctx).
		Preload("Badge").
		Where("user_id = ?", userID).
		Order("earned_at DESC").
		Find(&out).Error
	return out, err
}

func (s *BadgeService) ListProgress(ctx context.Context, userID string) ([]models.UserBadgeProgress, error) {
	var out []models.UserBadgeProgress
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error
	return out, err
}
