package services

import (
	"context"
	"testing"
	"time"

	"gamification-engine/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh in-memory SQLite database with every table migrated.
// A single connection keeps the in-memory database shared across goroutines.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// setupTestEngine wires the full engine on a fresh database with levels and
// the default badge catalog seeded.
func setupTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	engine := NewEngine(db, EngineOptions{})
	if err := engine.Bootstrap(context.Background(), 20); err != nil {
		t.Fatalf("Failed to bootstrap engine: %v", err)
	}
	return engine, db
}

func setPointsConfig(t *testing.T, svc *ConfigService, department, action string, points int64, multipliers map[string]interface{}) {
	t.Helper()

	cfg := &models.GamificationConfig{
		Department:  department,
		Action:      action,
		BasePoints:  points,
		Multipliers: multipliers,
		Active:      true,
	}
	if err := svc.UpsertPointsConfig(context.Background(), cfg); err != nil {
		t.Fatalf("Failed to upsert points config %s/%s: %v", department, action, err)
	}
}

func badgeByCode(t *testing.T, db *gorm.DB, code string) models.Badge {
	t.Helper()

	var b models.Badge
	if err := db.Where("code = ?", code).First(&b).Error; err != nil {
		t.Fatalf("Badge %s not found: %v", code, err)
	}
	return b
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var n int64
	if err := db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}
