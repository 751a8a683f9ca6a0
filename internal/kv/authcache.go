package kv

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// AuthCache implements core.AuthCache over a TTL-bounded KV bucket.
// Expiry is a bucket property, so every key shares the bucket's TTL.
type AuthCache struct {
	store *Store
}

// NewAuthCache creates a new AuthCache.
func NewAuthCache(kv jetstream.KeyValue) *AuthCache {
	return &AuthCache{store: NewStore(kv)}
}

func (c *AuthCache) Get(ctx context.Context, key string) (string, bool, error) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return string(data), true, nil
}

func (c *AuthCache) Set(ctx context.Context, key, value string) error {
	return c.store.Put(ctx, key, []byte(value))
}

func (c *AuthCache) SetNX(ctx context.Context, key, value string) (bool, error) {
	return c.store.Create(ctx, key, []byte(value))
}
