package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamification-engine/models"
)

func TestCriteriaSourceTag(t *testing.T) {
	tests := []struct {
		criteria models.BadgeCriteria
		want     string
	}{
		{models.BadgeCriteria{Description: "task completed"}, "task_completed"},
		{models.BadgeCriteria{Description: "Peer Recognition"}, "peer_recognition"},
		{models.BadgeCriteria{Description: "anything", SourceTag: "custom_tag"}, "custom_tag"},
	}
	for _, tt := range tests {
		if got := CriteriaSourceTag(tt.criteria); got != tt.want {
			t.Errorf("CriteriaSourceTag(%+v) = %q, want %q", tt.criteria, got, tt.want)
		}
	}
}

func TestEvaluateBadges_CountCriteria(t *testing.T) {
	engine, db := setupTestEngine(t)
	ctx := context.Background()

	res, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 5, Source: "task_completed"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.NewBadges) != 1 || res.NewBadges[0].Code != "FIRST_TASK" {
		t.Fatalf("Expected FIRST_TASK, got %+v", res.NewBadges)
	}

	// 5 for the task + common rarity bonus
	if total, _ := engine.Points.GetTotal(ctx, "u1"); total != 5+RarityBonus[models.RarityCommon] {
		t.Errorf("Expected total 15, got %d", total)
	}
	if n := countRows(t, db, &models.GamificationEvent{}, "user_id = ? AND type = ?", "u1", models.EventBadgeEarned); n != 1 {
		t.Errorf("Expected 1 badge_earned event, got %d", n)
	}

	master := badgeByCode(t, db, "TASK_MASTER")
	var progress models.UserBadgeProgress
	if err := db.Where("user_id = ? AND badge_id = ?", "u1", master.ID).First(&progress).Error; err != nil {
		t.Fatalf("Expected progress row for TASK_MASTER: %v", err)
	}
	if progress.Progress != 1 {
		t.Errorf("Expected TASK_MASTER progress 1, got %d", progress.Progress)
	}

	// A second task does not re-award the badge.
	res, err = engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 5, Source: "task_completed"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.NewBadges) != 0 {
		t.Errorf("Expected no new badges, got %+v", res.NewBadges)
	}
}

func TestEvaluateBadges_ThresholdCascadesOnce(t *testing.T) {
	engine, db := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 495, Source: models.SourceManualAdjustment}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := countRows(t, db, &models.UserBadge{}, "user_id = ?", "u1"); n != 0 {
		t.Fatalf("Expected no badges below 500, got %d", n)
	}

	if _, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 5, Source: "task_completed"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// FIRST_TASK and POINTS_500, each bonus paid exactly once.
	if n := countRows(t, db, &models.UserBadge{}, "user_id = ?", "u1"); n != 2 {
		t.Errorf("Expected 2 badges, got %d", n)
	}
	if n := countRows(t, db, &models.PointEntry{}, "user_id = ? AND source = ?", "u1", models.SourceBadgeEarned); n != 2 {
		t.Errorf("Expected 2 bonus entries, got %d", n)
	}
	want := int64(495 + 5 + RarityBonus[models.RarityCommon] + RarityBonus[models.RarityEpic])
	if total, _ := engine.Points.GetTotal(ctx, "u1"); total != want {
		t.Errorf("Expected total %d, got %d", want, total)
	}
}

func TestEvaluateBadges_SkipsInactiveBadges(t *testing.T) {
	engine, db := setupTestEngine(t)
	ctx := context.Background()

	first := badgeByCode(t, db, "FIRST_TASK")
	if err := db.Model(&models.Badge{}).Where("id = ?", first.ID).Update("active", false).Error; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	res, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 5, Source: "task_completed"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.NewBadges) != 0 {
		t.Errorf("Inactive badge must not be awarded, got %+v", res.NewBadges)
	}
}

// brokenLedger reports progress but cannot write bonus points.
type brokenLedger struct{}

func (brokenLedger) Award(ctx context.Context, in AwardInput) (*AwardResult, error) {
	return nil, errors.New("ledger unavailable")
}

func (brokenLedger) GetTotal(ctx context.Context, userID string) (int64, error) { return 0, nil }

func (brokenLedger) CountBySource(ctx context.Context, userID, source string) (int64, error) {
	return 1, nil
}

func TestEvaluateBadges_BonusFailureKeepsBadge(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBadgeService(db, brokenLedger{}, nil, nil)
	ctx := context.Background()

	badge := &models.Badge{Name: "First Report", Rarity: models.RarityRare, Active: true}
	if err := svc.CreateBadge(ctx, badge, &models.BadgeCriteria{Type: models.CriteriaCount, Value: 1, Description: "report filed"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if badge.Code != "FIRST_REPORT" {
		t.Errorf("Expected derived code FIRST_REPORT, got %s", badge.Code)
	}

	earned, err := svc.EvaluateBadges(ctx, "u1")
	if err == nil {
		t.Fatal("Expected bonus award error")
	}
	if len(earned) != 1 {
		t.Errorf("Expected the granted badge in the partial result, got %d", len(earned))
	}
	if n := countRows(t, db, &models.UserBadge{}, "user_id = ?", "u1"); n != 1 {
		t.Errorf("Badge must stay granted after bonus failure, got %d rows", n)
	}

	// Held badges are not re-evaluated, so no second bonus attempt.
	if _, err := svc.EvaluateBadges(ctx, "u1"); err != nil {
		t.Errorf("Unexpected error on re-evaluation: %v", err)
	}
}

func TestEvaluateBadges_ConcurrentCallsGrantOnce(t *testing.T) {
	db := setupTestDB(t)
	points := NewPointsService(db, NewConfigService(db))
	svc := NewBadgeService(db, points, NewEventService(db), nil)
	ctx := context.Background()

	badge := &models.Badge{Code: "FIRST_TASK", Name: "Getting Started", Rarity: models.RarityCommon, Active: true}
	if err := svc.CreateBadge(ctx, badge, &models.BadgeCriteria{Type: models.CriteriaCount, Value: 1, Description: "task completed"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := points.Award(ctx, AwardInput{UserID: "u1", Amount: 5, Source: "task_completed"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			earned, err := svc.EvaluateBadges(ctx, "u1")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			mu.Lock()
			granted += len(earned)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("Expected exactly one caller to be granted the badge, got %d", granted)
	}
	if n := countRows(t, db, &models.UserBadge{}, "user_id = ?", "u1"); n != 1 {
		t.Errorf("Expected 1 user badge, got %d", n)
	}
	if total, _ := points.GetTotal(ctx, "u1"); total != 15 {
		t.Errorf("Expected bonus paid once (total 15), got %d", total)
	}
}

func TestGiveBadge(t *testing.T) {
	engine, db := setupTestEngine(t)
	ctx := context.Background()
	setPointsConfig(t, engine.Config, "", models.SourcePeerRecognition, 20, nil)

	social := badgeByCode(t, db, "TEAM_PLAYER")
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	gift, err := engine.Badges.GiveBadge(ctx, "alice", "bob", social.ID, "thanks for the review", now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gift.GivenOn != "2026-03-10" {
		t.Errorf("Expected given_on 2026-03-10, got %s", gift.GivenOn)
	}

	if n := countRows(t, db, &models.UserBadge{}, "user_id = ? AND badge_id = ?", "bob", social.ID); n != 1 {
		t.Errorf("Expected bob to hold TEAM_PLAYER once, got %d", n)
	}
	// 20 recognition points + common bonus, paid once
	if total, _ := engine.Points.GetTotal(ctx, "bob"); total != 30 {
		t.Errorf("Expected bob total 30, got %d", total)
	}

	_, err = engine.Badges.GiveBadge(ctx, "alice", "bob", social.ID, "again", now.Add(2*time.Hour))
	if !errors.Is(err, ErrDuplicateBadgeGift) {
		t.Errorf("Expected ErrDuplicateBadgeGift, got %v", err)
	}

	// Next day is allowed; recognition points accrue, the badge is already held.
	if _, err := engine.Badges.GiveBadge(ctx, "alice", "bob", social.ID, "", now.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if total, _ := engine.Points.GetTotal(ctx, "bob"); total != 50 {
		t.Errorf("Expected bob total 50, got %d", total)
	}
}

func TestGiveBadge_Rejections(t *testing.T) {
	engine, db := setupTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	social := badgeByCode(t, db, "TEAM_PLAYER")
	regular := badgeByCode(t, db, "FIRST_TASK")

	tests := []struct {
		name     string
		giver    string
		receiver string
		badgeID  string
		want     error
	}{
		{"self", "alice", "alice", social.ID, ErrSelfRecognition},
		{"non social", "alice", "bob", regular.ID, ErrNotSocialBadge},
		{"unknown badge", "alice", "bob", "missing", ErrNotFound},
		{"missing giver", "", "bob", social.ID, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Badges.GiveBadge(ctx, tt.giver, tt.receiver, tt.badgeID, "", now)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if !IsValidationError(err) {
				t.Errorf("Expected a validation error, got %v", err)
			}
		})
	}
}

func TestGrantBadge_UnknownBadge(t *testing.T) {
	engine, _ := setupTestEngine(t)

	if _, err := engine.Badges.GrantBadge(context.Background(), "u1", "nope", "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSeedDefaultBadges_OnlyOnEmptyTable(t *testing.T) {
	engine, db := setupTestEngine(t)

	n, err := engine.Badges.SeedDefaultBadges(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no reseed, got %d", n)
	}
	if n := countRows(t, db, &models.Badge{}, "1 = 1"); n != int64(len(models.DefaultBadges)) {
		t.Errorf("Expected %d badges, got %d", len(models.DefaultBadges), n)
	}
}
