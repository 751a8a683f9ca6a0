// Package nats holds the NATS connection: the JetStream KV bucket backing
// the login-state cache and the pub/sub broker for file events.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/flatroom/flat-server-go/internal/kv"
)

// Backend owns the NATS connection and the KV buckets opened on it.
type Backend struct {
	nc *nats.Conn
	js jetstream.JetStream

	auth *kv.AuthCache
}

// New connects to NATS and sets up JetStream resources.
func New(natsURL string, authTTL time.Duration) (*Backend, error) {
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := SetupJetStream(ctx, js, authTTL); err != nil {
		nc.Close()
		return nil, fmt.Errorf("setting up JetStream: %w", err)
	}

	authKV, err := js.KeyValue(ctx, BucketAuth)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening KV bucket %s: %w", BucketAuth, err)
	}

	return &Backend{
		nc:   nc,
		js:   js,
		auth: kv.NewAuthCache(authKV),
	}, nil
}

// Conn returns the underlying NATS connection for use by auxiliary services (e.g., pub/sub broker).
func (b *Backend) Conn() *nats.Conn {
	return b.nc
}

// AuthCache returns the login-state cache.
func (b *Backend) AuthCache() *kv.AuthCache {
	return b.auth
}

// Ping reports whether the connection is usable.
func (b *Backend) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats connection status: %s", b.nc.Status())
	}
	return nil
}

func (b *Backend) Close() error {
	b.nc.Close()
	return nil
}
