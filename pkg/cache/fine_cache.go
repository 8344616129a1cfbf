package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// FineCacheTTL bounds how stale a fine summary can get if an invalidation is lost.
	FineCacheTTL = 6 * time.Hour

	fineCacheKeyPrefix = "fines"
)

// CachedFines is the per-user fine summary stored as a Redis hash.
type CachedFines struct {
	Total       int64
	LateReturns int
}

// FineCache stores fine summaries keyed by user.
// Key format: "fines:{userID}"
type FineCache struct {
	client *RedisClient
}

// NewFineCache creates a new FineCache backed by the given RedisClient.
func NewFineCache(r *RedisClient) *FineCache {
	return &FineCache{client: r}
}

// Get returns redis.Nil when the summary is not cached.
func (c *FineCache) Get(ctx context.Context, userID uuid.UUID) (*CachedFines, error) {
	vals, err := c.client.Client().HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if len(vals) == 0 {
		return nil, redis.Nil
	}

	total, err := strconv.ParseInt(vals["total"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cache parse total: %w", err)
	}
	late, err := strconv.Atoi(vals["late_returns"])
	if err != nil {
		return nil, fmt.Errorf("cache parse late_returns: %w", err)
	}
	return &CachedFines{Total: total, LateReturns: late}, nil
}

// Set writes the summary and its TTL in one pipeline.
func (c *FineCache) Set(ctx context.Context, userID uuid.UUID, f *CachedFines) error {
	key := c.key(userID)
	pipe := c.client.Client().Pipeline()
	pipe.HSet(ctx, key,
		"total", strconv.FormatInt(f.Total, 10),
		"late_returns", strconv.Itoa(f.LateReturns),
	)
	pipe.Expire(ctx, key, FineCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the user's summary so the next read recomputes it.
func (c *FineCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Client().Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *FineCache) key(userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", fineCacheKeyPrefix, userID)
}
