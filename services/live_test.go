package services

import (
	"context"
	"testing"
	"time"

	"gamification-engine/cache"
	"gamification-engine/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupLiveEngine(t *testing.T) (*Engine, *cache.RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	live := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { live.Close() })

	engine := NewEngine(setupTestDB(t), EngineOptions{Live: live})
	if err := engine.Bootstrap(context.Background(), 20); err != nil {
		t.Fatalf("Failed to bootstrap engine: %v", err)
	}
	return engine, live
}

func TestCachedTotal_PrimesFromLedger(t *testing.T) {
	engine, live := setupLiveEngine(t)
	ctx := context.Background()

	if _, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 30, Source: "task_completed"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ledger, err := engine.Points.GetTotal(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	total, cached, err := engine.Points.CachedTotal(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cached || total != ledger {
		t.Fatalf("Expected ledger total %d on first read, got %d (cached=%v)", ledger, total, cached)
	}
	if got, ok, _ := live.GetTotal(ctx, "u1"); !ok || got != ledger {
		t.Errorf("Expected counter primed with %d, got %d (ok=%v)", ledger, got, ok)
	}

	if _, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 10, Source: "task_completed"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ledger, _ = engine.Points.GetTotal(ctx, "u1")
	total, cached, err = engine.Points.CachedTotal(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !cached || total != ledger {
		t.Errorf("Expected cached total %d, got %d (cached=%v)", ledger, total, cached)
	}
}

func TestCachedTotal_WithoutCounter(t *testing.T) {
	engine, _ := setupTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Points.Award(ctx, AwardInput{UserID: "u1", Amount: 12, Source: models.SourceManualAdjustment}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ledger, _ := engine.Points.GetTotal(ctx, "u1")
	total, cached, err := engine.Points.CachedTotal(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cached || total != ledger {
		t.Errorf("Expected ledger total %d, got %d (cached=%v)", ledger, total, cached)
	}
}

func TestLivePosition(t *testing.T) {
	t.Run("live board", func(t *testing.T) {
		engine, _ := setupLiveEngine(t)
		ctx := context.Background()
		for user, amount := range map[string]int64{"u1": 50, "u2": 500} {
			if _, err := engine.Points.Award(ctx, AwardInput{UserID: user, Amount: amount, Source: "task_completed"}); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		}

		tests := []struct {
			user string
			want int
		}{
			{"u2", 1},
			{"u1", 2},
			{"ghost", 0},
		}
		for _, tt := range tests {
			pos, err := engine.Rankings.LivePosition(ctx, tt.user)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if pos != tt.want {
				t.Errorf("%s: expected position %d, got %d", tt.user, tt.want, pos)
			}
		}
	})

	t.Run("snapshot fallback", func(t *testing.T) {
		engine, _ := setupTestEngine(t)
		ctx := context.Background()

		pos, err := engine.Rankings.LivePosition(ctx, "u1")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if pos != 0 {
			t.Errorf("Expected unranked user at 0, got %d", pos)
		}

		for user, amount := range map[string]int64{"u1": 50, "u2": 500} {
			if _, err := engine.Points.Award(ctx, AwardInput{UserID: user, Amount: amount, Source: models.SourceManualAdjustment}); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		}
		if _, err := engine.Rankings.RecomputeRankings(ctx, models.RankingAllTime, time.Now()); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		pos, err = engine.Rankings.LivePosition(ctx, "u1")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if pos != 2 {
			t.Errorf("Expected snapshot position 2, got %d", pos)
		}
	})
}
