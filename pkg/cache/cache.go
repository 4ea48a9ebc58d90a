// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package cache provides a TTL cache for resolved discovery results with
// single-flight resolution per key.
//
// A fresh entry is returned without calling the resolve function. On a miss
// or after expiry exactly one resolution runs per key, however many callers
// wait for it, and its result is handed to all of them. Failures are not
// cached. Keys are independent: a slow resolution never blocks callers of
// other keys.
//
// An optional shared Store adds a second cache level, for example Redis,
// so that several processes reuse each other's lookups.
package cache

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
)

// DefaultTTL is used when no TTL is configured
const DefaultTTL = time.Hour

// Key identifies a cache entry. Zone and Anchors name the network zone and
// the trust anchor set (see trust.AnchorSet.ID) the entry was resolved for.
// Extra distinguishes further lookups for the same participant, such as
// different document types.
type Key struct {
	Identifier identifier.Identifier
	Zone       string
	Anchors    string
	Extra      string
}

// String encodes the key for shared stores
func (k Key) String() string {
	parts := []string{k.Zone, k.Anchors, k.Identifier.URIEncoded(), k.Extra}
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return strings.Join(parts, "|")
}

// ResolveFunc produces the value for a missing or expired key
type ResolveFunc[V any] func(ctx context.Context) (V, error)

// Store is a shared second cache level. Get reports ok=false for a missing
// key. Errors are logged by the cache and otherwise ignored.
type Store[V any] interface {
	Get(ctx context.Context, key string) (value V, expiresAt time.Time, ok bool, err error)
	Set(ctx context.Context, key string, value V, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL cache with single-flight resolution. The zero value is not
// usable; create caches with New.
type Cache[V any] struct {
	ttl    time.Duration
	now    func() time.Time
	store  Store[V]
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[Key]entry[V]
	group   singleflight.Group
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithTTL sets the lifetime of cached entries
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// WithStore adds a shared second level
func WithStore[V any](store Store[V]) Option[V] {
	return func(c *Cache[V]) {
		c.store = store
	}
}

// WithLogger sets the logger for shared store failures
func WithLogger[V any](logger *slog.Logger) Option[V] {
	return func(c *Cache[V]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[Key]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// GetOrResolve returns the cached value for key or resolves it.
//
// Concurrent callers for the same key share a single call to resolve. A
// caller whose ctx is done returns ctx.Err() without waiting; the shared
// resolution continues for the remaining waiters and still populates the
// cache. resolve receives a context that carries the values of the first
// caller's ctx but not its cancellation.
func (c *Cache[V]) GetOrResolve(ctx context.Context, key Key, resolve ResolveFunc[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	skey := key.String()
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(skey, func() (any, error) {
		return c.resolve(flightCtx, key, skey, resolve)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

func (c *Cache[V]) resolve(ctx context.Context, key Key, skey string, resolve ResolveFunc[V]) (any, error) {
	// a flight for this key may have completed since the caller looked
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	if c.store != nil {
		v, expiresAt, ok, err := c.store.Get(ctx, skey)
		switch {
		case err != nil:
			c.logger.Warn("shared cache read failed", "key", skey, "error", err)
		case ok && c.now().Before(expiresAt):
			c.put(key, v, expiresAt)
			return v, nil
		}
	}

	v, err := resolve(ctx)
	if err != nil {
		return nil, err
	}

	expiresAt := c.now().Add(c.ttl)
	c.put(key, v, expiresAt)

	if c.store != nil {
		if err := c.store.Set(ctx, skey, v, expiresAt); err != nil {
			c.logger.Warn("shared cache write failed", "key", skey, "error", err)
		}
	}
	return v, nil
}

// Get returns a fresh cached value without resolving
func (c *Cache[V]) Get(key Key) (V, bool) {
	return c.lookup(key)
}

func (c *Cache[V]) lookup(key Key) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) put(key Key, v V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: v, expiresAt: expiresAt}
}

// Invalidate removes key from the cache and the shared store. A resolution
// already in flight for key is not joined by later callers.
func (c *Cache[V]) Invalidate(ctx context.Context, key Key) error {
	skey := key.String()

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.group.Forget(skey)

	if c.store != nil {
		return c.store.Delete(ctx, skey)
	}
	return nil
}

// Purge drops expired local entries and returns how many were removed
func (c *Cache[V]) Purge() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of local entries, including expired ones not yet purged
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
