// Package rediscache implements the login-state cache on Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuthCache implements core.AuthCache with per-key expiry.
type AuthCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis server at url (redis://[:password@]host:port/db).
func New(ctx context.Context, url string, ttl time.Duration) (*AuthCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &AuthCache{client: client, ttl: ttl}, nil
}

func (c *AuthCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *AuthCache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *AuthCache) SetNX(ctx context.Context, key, value string) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Ping checks the server is reachable.
func (c *AuthCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *AuthCache) Close() error {
	return c.client.Close()
}
