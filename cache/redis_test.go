package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupTestCache(t *testing.T) *RedisCache {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Failed to reach in-process redis: %v", err)
	}
	return c
}

func TestIncrementPoints_MissingTotalStaysMissing(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	if err := c.IncrementPoints(ctx, "u1", 15); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, ok, err := c.GetTotal(ctx, "u1"); err != nil || ok {
		t.Errorf("Expected a cache miss for an unprimed total, got ok=%v err=%v", ok, err)
	}
	top, err := c.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "u1" || top[0].Points != 15 {
		t.Errorf("Expected u1 with 15 on the leaderboard, got %+v", top)
	}
}

func TestSetTotal_ThenIncrement(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	if err := c.SetTotal(ctx, "u1", 100); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := c.IncrementPoints(ctx, "u1", 25); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := c.IncrementPoints(ctx, "u1", -5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	total, ok, err := c.GetTotal(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ok || total != 120 {
		t.Errorf("Expected cached total 120, got %d (ok=%v)", total, ok)
	}

	// A later ledger recompute overwrites both views.
	if err := c.SetTotal(ctx, "u1", 90); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	top, err := c.TopN(ctx, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(top) != 1 || top[0].Points != 90 {
		t.Errorf("Expected leaderboard score 90, got %+v", top)
	}
}

func TestTopN_AndGetRank(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	scores := map[string]int64{"alice": 300, "bob": 100, "carol": 200}
	for user, total := range scores {
		if err := c.SetTotal(ctx, user, total); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	top, err := c.TopN(ctx, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []LeaderboardEntry{
		{UserID: "alice", Points: 300, Position: 1},
		{UserID: "carol", Points: 200, Position: 2},
	}
	if len(top) != len(want) {
		t.Fatalf("Expected %d entries, got %+v", len(want), top)
	}
	for i := range want {
		if top[i] != want[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, want[i], top[i])
		}
	}

	tests := []struct {
		user string
		want int64
	}{
		{"alice", 1},
		{"carol", 2},
		{"bob", 3},
		{"nobody", 0},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			rank, err := c.GetRank(ctx, tt.user)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if rank != tt.want {
				t.Errorf("Expected rank %d, got %d", tt.want, rank)
			}
		})
	}
}
