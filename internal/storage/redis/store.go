// Package redis implements the shared cache level on Redis
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces cache keys
const DefaultPrefix = "bdxl:cache:"

// Connect opens a client from a redis:// URL or a plain host:port address
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.Contains(redisURL, "://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging Redis: %w", err)
	}
	return client, nil
}

// envelope is the stored JSON document
type envelope[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is a cache.Store backed by Redis. Values are JSON encoded and expire
// with the cache entry.
type Store[V any] struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a store using client. An empty prefix selects DefaultPrefix.
func NewStore[V any](client redis.UniversalClient, prefix string) *Store[V] {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store[V]{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Get implements cache.Store
func (s *Store[V]) Get(ctx context.Context, key string) (V, time.Time, bool, error) {
	var zero V
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, time.Time{}, false, nil
		}
		return zero, time.Time{}, false, err
	}

	var env envelope[V]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, time.Time{}, false, fmt.Errorf("decoding cached value: %w", err)
	}
	return env.Value, env.ExpiresAt, true, nil
}

// Set implements cache.Store. Entries already expired are not written.
func (s *Store[V]) Set(ctx context.Context, key string, value V, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(envelope[V]{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("encoding cached value: %w", err)
	}
	return s.client.Set(ctx, s.prefix+key, raw, ttl).Err()
}

// Delete implements cache.Store
func (s *Store[V]) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
