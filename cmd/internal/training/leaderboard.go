package training

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "gcf:training:leaderboard"

// RedisLeaderboard ranks agents on a Redis sorted set. Scores are
// absolute XP totals, so Record is idempotent for a given total.
type RedisLeaderboard struct {
	client *redis.Client
}

// NewRedisLeaderboard constructs a leaderboard over an existing client.
// The client is owned by the caller.
func NewRedisLeaderboard(client *redis.Client) *RedisLeaderboard {
	return &RedisLeaderboard{client: client}
}

// Record sets the user's score to their current XP total.
func (l *RedisLeaderboard) Record(ctx context.Context, userID string, xp int64) error {
	if userID == "" {
		return nil
	}
	if err := l.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(xp),
		Member: userID,
	}).Err(); err != nil {
		return fmt.Errorf("leaderboard zadd: %w", err)
	}
	return nil
}

// Top returns the highest-ranked entries.
func (l *RedisLeaderboard) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = clampLeaderboardLimit(limit)

	zs, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard zrevrange: %w", err)
	}

	out := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, LeaderboardEntry{
			Rank:   i + 1,
			UserID: member,
			XP:     int64(z.Score),
		})
	}
	return out, nil
}

// StoreLeaderboard is the fallback when Redis is not configured: ranks
// are computed from the progress store on each call.
type StoreLeaderboard struct {
	store ProgressStore
}

// NewStoreLeaderboard constructs the store-backed fallback.
func NewStoreLeaderboard(store ProgressStore) *StoreLeaderboard {
	return &StoreLeaderboard{store: store}
}

// Record is a no-op: the store already holds the XP total.
func (l *StoreLeaderboard) Record(_ context.Context, _ string, _ int64) error { return nil }

// Top ranks from the progress store.
func (l *StoreLeaderboard) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	return l.store.TopByXP(ctx, limit)
}
