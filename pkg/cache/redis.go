// Package cache owns the Redis connection shared by sessions, the fine
// summary cache and the Redis capacity ledger.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghuser/campusreserve/pkg/config"
)

const connectTimeout = 2 * time.Second

// RedisClient is the process-wide Redis connection pool.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to cfg.RedisURL, traces every command and verifies
// the server answers within 2s. Query parameters in the URL (pool_size,
// read_timeout, ...) override the defaults below.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyDefaults(opts, cfg.ServiceName)

	rdb := redis.NewClient(opts)
	rdb.AddHook(tracingHook{})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisClient{client: rdb}, nil
}

// applyDefaults fills pool settings the URL left unset. Command timeouts stay
// short because ledger calls carry their own lock-timeout deadline.
func applyDefaults(opts *redis.Options, clientName string) {
	if opts.PoolSize == 0 {
		opts.PoolSize = 20
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = 2
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = time.Second
	}
	if opts.PoolTimeout == 0 {
		opts.PoolTimeout = 2 * time.Second
	}
	if opts.ClientName == "" {
		opts.ClientName = clientName
	}
	opts.MaxRetries = 2
}

// Ping checks the Redis connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close shuts down the pool. It is a no-op on a zero RedisClient.
func (r *RedisClient) Close() error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Client returns the underlying client.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}
