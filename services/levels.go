package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BaseXPPerLevel scales the level curve: level n -> n+1 needs floor(BaseXPPerLevel * n^1.2).
const BaseXPPerLevel = 100

// xpForNextLevel returns the points required to go from currentLevel to currentLevel+1.
func xpForNextLevel(currentLevel int) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

// PointsTotaler is the ledger read the level calculator depends on.
type PointsTotaler interface {
	GetTotal(ctx context.Context, userID string) (int64, error)
}

type LevelProgress struct {
	UserID        string  `json:"user_id"`
	TotalPoints   int64   `json:"total_points"`
	CurrentLevel  int     `json:"current_level"`
	NextLevel     *int    `json:"next_level"`
	PointsCurrent int64   `json:"points_current"`
	PointsNext    *int64  `json:"points_next"`
	Progress      float64 `json:"progress"`
}

type LevelUpResult struct {
	UserID        string `json:"user_id"`
	PreviousLevel int    `json:"previous_level"`
	NewLevel      int    `json:"new_level"`
	LeveledUp     bool   `json:"leveled_up"`
	TotalPoints   int64  `json:"total_points"`
}

type LevelService struct {
	DB     *gorm.DB
	Points PointsTotaler
	Events EventEmitter
}

func NewLevelService(db *gorm.DB, points PointsTotaler, events EventEmitter) *LevelService {
	return &LevelService{DB: db, Points: points, Events: events}
}

// SeedLevels fills an empty levels table with maxLevel rows from the XP curve.
// Level 1 starts at 0 points. Returns the number of rows inserted.
func (s *LevelService) SeedLevels(ctx context.Context, maxLevel int) (int, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Level{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 || maxLevel < 1 {
		return 0, nil
	}

	levels := make([]models.Level, 0, maxLevel)
	var required int64
	for n := 1; n <= maxLevel; n++ {
		levels = append(levels, models.Level{Level: n, PointsRequired: required})
		required += xpForNextLevel(n)
	}
	if err := s.DB.WithContext(ctx).CreateInBatches(&levels, 500).Error; err != nil {
		return 0, fmt.Errorf("seed levels: %w", err)
	}
	utils.LogSuccess("📈 Seeded %d levels", len(levels))
	return len(levels), nil
}

func (s *LevelService) loadLevels(ctx context.Context) ([]models.Level, error) {
	var levels []models.Level
	if err := s.DB.WithContext(ctx).Order("level ASC").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("load levels: %w", err)
	}
	return levels, nil
}

// GetLevelProgress maps the user's ledger total onto the level table.
func (s *LevelService) GetLevelProgress(ctx context.Context, userID string) (*LevelProgress, error) {
	levels, err := s.loadLevels(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.Points.GetTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := computeLevelProgress(total, levels)
	p.UserID = userID
	return &p, nil
}

// computeLevelProgress expects levels sorted by Level ascending.
// A total below the first threshold is level 0 at 0 points.
func computeLevelProgress(total int64, levels []models.Level) LevelProgress {
	p := LevelProgress{TotalPoints: total}
	next := -1
	for i, l := range levels {
		if l.PointsRequired <= total {
			p.CurrentLevel = l.Level
			p.PointsCurrent = l.PointsRequired
			continue
		}
		next = i
		break
	}

	if next < 0 {
		p.Progress = 100
		return p
	}

	nl := levels[next]
	p.NextLevel = &nl.Level
	p.PointsNext = &nl.PointsRequired

	span := nl.PointsRequired - p.PointsCurrent
	if span <= 0 {
		p.Progress = 100
		return p
	}
	pct := float64(total-p.PointsCurrent) / float64(span) * 100
	p.Progress = math.Max(0, math.Min(100, pct))
	return p
}

// CheckLevelUp compares the fresh level with the stored last known level.
// The conditional update lets exactly one concurrent caller observe a transition.
func (s *LevelService) CheckLevelUp(ctx context.Context, userID string) (*LevelUpResult, error) {
	levels, err := s.loadLevels(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.Points.GetTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := computeLevelProgress(total, levels)

	baseLevel := 0
	if len(levels) > 0 {
		baseLevel = levels[0].Level
	}
	profile, err := s.ensureProfile(ctx, userID, baseLevel)
	if err != nil {
		return nil, err
	}

	result := &LevelUpResult{
		UserID:        userID,
		PreviousLevel: profile.LastKnownLevel,
		NewLevel:      p.CurrentLevel,
		TotalPoints:   total,
	}
	if p.CurrentLevel <= profile.LastKnownLevel {
		return result, nil
	}

	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("user_id = ? AND last_known_level < ?", userID, p.CurrentLevel).
		Updates(map[string]interface{}{
			"last_known_level": p.CurrentLevel,
			"last_level_up_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("persist level for %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return result, nil
	}

	result.LeveledUp = true
	utils.LogSuccess("⬆️ Level up: %s %d → %d", userID, profile.LastKnownLevel, p.CurrentLevel)

	if s.Events != nil {
		if err := s.Events.Emit(ctx, userID, models.EventLevelUp,
			fmt.Sprintf("Reached level %d", p.CurrentLevel), result); err != nil {
			utils.LogWarn("⚠️ Failed to record level_up event for %s: %v", userID, err)
		}
	}
	return result, nil
}

func (s *LevelService) ensureProfile(ctx context.Context, userID string, baseLevel int) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	profile = models.UserProfile{UserID: userID, LastKnownLevel: baseLevel}
	if err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("create profile for %s: %w", userID, err)
	}
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
