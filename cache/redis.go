package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	leaderboardKey  = "gamification:leaderboard:live"
	totalsKeyPrefix = "gamification:points:"
)

// RedisCache keeps a live, eventually consistent view of point totals.
// The ledger stays the source of truth; this is a derived counter.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// NewRedisCacheFromClient wraps an existing client (tests, shared pools).
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// incrementIfPresent only bumps totals that were primed from the ledger; a
// missing key stays missing so the next read recomputes it.
var incrementIfPresent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCRBY", KEYS[1], ARGV[1])
end
return false
`)

// IncrementPoints adds delta to the user's live total and leaderboard score.
func (c *RedisCache) IncrementPoints(ctx context.Context, userID string, delta int64) error {
	if err := incrementIfPresent.Run(ctx, c.client, []string{totalsKeyPrefix + userID}, delta).Err(); err != nil && err != redis.Nil {
		return err
	}
	return c.client.ZIncrBy(ctx, leaderboardKey, float64(delta), userID).Err()
}

// SetTotal overwrites the cached total with a value recomputed from the ledger.
func (c *RedisCache) SetTotal(ctx context.Context, userID string, total int64) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, totalsKeyPrefix+userID, total, 0)
	pipe.ZAdd(ctx, leaderboardKey, &redis.Z{Score: float64(total), Member: userID})
	_, err := pipe.Exec(ctx)
	return err
}

// GetTotal returns the cached total; ok is false on a cache miss.
func (c *RedisCache) GetTotal(ctx context.Context, userID string) (total int64, ok bool, err error) {
	val, err := c.client.Get(ctx, totalsKeyPrefix+userID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	total, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached total for %s: %w", userID, err)
	}
	return total, true, nil
}

type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	Points   int64  `json:"points"`
	Position int    `json:"position"`
}

// TopN returns the n highest live scores.
func (c *RedisCache) TopN(ctx context.Context, n int64) ([]LeaderboardEntry, error) {
	zs, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, LeaderboardEntry{UserID: member, Points: int64(z.Score), Position: i + 1})
	}
	return out, nil
}

// GetRank returns the 1-based live position of a user, or 0 when absent.
func (c *RedisCache) GetRank(ctx context.Context, userID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, leaderboardKey, userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
