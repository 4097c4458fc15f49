package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache stores ranking snapshots in Redis.
//
// Layout per mode:
//   - String "{prefix}leaderboard:snapshot:{mode}" holds the snapshot JSON
//   - Sorted set "{prefix}leaderboard:scores:{mode}" maps userID -> score
//
// The sorted set mirrors the snapshot for cheap external reads (ZREVRANGE);
// the snapshot is the source for the API.
type LeaderboardCache struct {
	cache *Cache
}

var _ leaderboard.SnapshotCache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

func (c *LeaderboardCache) snapshotKey(mode leaderboard.Mode) string {
	return c.cache.Key("leaderboard", "snapshot", string(mode))
}

func (c *LeaderboardCache) scoresKey(mode leaderboard.Mode) string {
	return c.cache.Key("leaderboard", "scores", string(mode))
}

// GetSnapshot returns the cached snapshot for mode, or nil on a miss.
func (c *LeaderboardCache) GetSnapshot(ctx context.Context, mode leaderboard.Mode) (*leaderboard.Snapshot, error) {
	var snap leaderboard.Snapshot
	err := c.cache.Get(ctx, c.snapshotKey(mode), &snap)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard_cache: get %s: %w", mode, err)
	}
	return &snap, nil
}

// SetSnapshot writes the snapshot and its score set in one transaction.
func (c *LeaderboardCache) SetSnapshot(ctx context.Context, snap *leaderboard.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	scoresKey := c.scoresKey(snap.Mode)
	members := make([]redis.Z, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		members = append(members, redis.Z{Score: e.Score, Member: e.UserID})
	}

	_, err = c.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.snapshotKey(snap.Mode), data, ttl)
		pipe.Del(ctx, scoresKey)
		if len(members) > 0 {
			pipe.ZAdd(ctx, scoresKey, members...)
			if ttl > 0 {
				pipe.Expire(ctx, scoresKey, ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("leaderboard_cache: set %s: %w", snap.Mode, err)
	}
	return nil
}

// TopUserIDs returns up to n user ids from the score set, best first.
func (c *LeaderboardCache) TopUserIDs(ctx context.Context, mode leaderboard.Mode, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	ids, err := c.cache.Client().ZRevRange(ctx, c.scoresKey(mode), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard_cache: top %s: %w", mode, err)
	}
	return ids, nil
}

// Invalidate drops every cached snapshot.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.cache.DeleteByPattern(ctx, c.cache.Key("leaderboard", "*")); err != nil {
		return fmt.Errorf("leaderboard_cache: invalidate: %w", err)
	}
	return nil
}
