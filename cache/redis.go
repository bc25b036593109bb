// Package cache holds a Redis-backed unlock cache for market.Resolver.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/fanfund/market"
)

// DefaultTTL bounds memory use. An expired key just means one more ledger read.
const DefaultTTL = 24 * time.Hour

// RedisUnlocks caches (fan, track) pairs known to be unlocked.
// It satisfies market.UnlockCache.
type RedisUnlocks struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisUnlocks(client *redis.Client, prefix string, ttl time.Duration) *RedisUnlocks {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisUnlocks{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisUnlocks) IsUnlocked(ctx context.Context, fanID market.AccountID, trackID market.TrackID) (bool, error) {
	err := r.client.Get(ctx, r.key(fanID, trackID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}

func (r *RedisUnlocks) MarkUnlocked(ctx context.Context, fanID market.AccountID, trackID market.TrackID) error {
	if err := r.client.Set(ctx, r.key(fanID, trackID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisUnlocks) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// key length-prefixes the fan id so ids containing ':' cannot collide,
// e.g. ("a:b", "c") and ("a", "b:c").
func (r *RedisUnlocks) key(fanID market.AccountID, trackID market.TrackID) string {
	return fmt.Sprintf("%sunlock:%d:%s:%s", r.prefix, len(fanID), fanID, trackID)
}

var _ market.UnlockCache = (*RedisUnlocks)(nil)
