package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"gamification-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConfigService struct {
	DB *gorm.DB
}

func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{DB: db}
}

// GetPointsConfig resolves the base points of an action: the department row
// first, then the global row, else 0. Inactive rows count as absent.
func (s *ConfigService) GetPointsConfig(ctx context.Context, action string, department *string) (int64, error) {
	cfg, err := s.resolve(ctx, action, department)
	if err != nil || cfg == nil {
		return 0, err
	}
	return cfg.BasePoints, nil
}

// ResolveAward applies the named multiplier (default 1) to the base points.
func (s *ConfigService) ResolveAward(ctx context.Context, action string, department *string, multiplierKey string) (int64, error) {
	cfg, err := s.resolve(ctx, action, department)
	if err != nil || cfg == nil {
		return 0, err
	}
	factor := 1.0
	if multiplierKey != "" {
		if raw, ok := cfg.Multipliers[multiplierKey]; ok {
			if f, ok := toFloat(raw); ok {
				factor = f
			}
		}
	}
	return int64(math.Floor(float64(cfg.BasePoints) * factor)), nil
}

func (s *ConfigService) resolve(ctx context.Context, action string, department *string) (*models.GamificationConfig, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	if department != nil && *department != "" {
		cfg, err := s.lookup(ctx, *department, action)
		if err != nil || cfg != nil {
			return cfg, err
		}
	}
	return s.lookup(ctx, "", action)
}

func (s *ConfigService) lookup(ctx context.Context, department, action string) (*models.GamificationConfig, error) {
	var cfg models.GamificationConfig
	err := s.DB.WithContext(ctx).
		Where("department = ? AND action = ? AND active = ?", department, action, true).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load points config %q/%q: %w", department, action, err)
	}
	return &cfg, nil
}

// UpsertPointsConfig creates or replaces the row keyed by (department, action).
func (s *ConfigService) UpsertPointsConfig(ctx context.Context, cfg *models.GamificationConfig) error {
	cfg.Action = strings.TrimSpace(cfg.Action)
	if cfg.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "department"}, {Name: "action"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_points", "multipliers", "active", "updated_at"}),
	}).Create(cfg).Error
}

func (s *ConfigService) ListPointsConfig(ctx context.Context) ([]models.GamificationConfig, error) {
	var out []models.GamificationConfig
	err := s.DB.WithContext(ctx).Order("action ASC, department ASC").Find(&out).Error
	return out, err
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
