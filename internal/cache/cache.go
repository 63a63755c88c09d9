// Package cache implements the read-through flag cache with TTL expiry and
// cross-instance invalidation. Cache availability must never block flag
// evaluation: every transport failure degrades to a miss, forcing a safe
// fallback to the persistent store.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/bus"
	"github.com/flagdeck/flagdeck/internal/store"
	"github.com/flagdeck/flagdeck/internal/telemetry"
)

// InvalidationTopic is the broadcast topic carrying invalidated flag keys.
const InvalidationTopic = "flagdeck.invalidate"

const keyPrefix = "flag:"

// DefaultTTL bounds staleness even when an invalidation broadcast is lost.
const DefaultTTL = 5 * time.Minute

// KV is the minimal key-value surface the cache needs. Implemented by Redis
// in production and by MemoryKV in dev and tests.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache is the per-instance read-through cache in front of the persistent
// store, wired to the shared invalidation bus.
type Cache struct {
	kv     KV
	bus    bus.Bus
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a cache. A non-positive ttl falls back to DefaultTTL.
func New(kv KV, b bus.Bus, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		kv:     kv,
		bus:    b,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Get returns the cached flag for key, or nil on miss. Transport errors and
// corrupt entries are logged and reported as misses, never returned.
func (c *Cache) Get(ctx context.Context, key string) *store.Flag {
	raw, ok, err := c.kv.Get(ctx, keyPrefix+key)
	if err != nil {
		c.logger.Warn().Err(err).Str("flag", key).Msg("cache get failed, treating as miss")
		telemetry.CacheMisses.Inc()
		return nil
	}
	if !ok {
		telemetry.CacheMisses.Inc()
		return nil
	}

	var flag store.Flag
	if err := json.Unmarshal([]byte(raw), &flag); err != nil {
		c.logger.Warn().Err(err).Str("flag", key).Msg("corrupt cache entry, evicting")
		c.Invalidate(ctx, key)
		telemetry.CacheMisses.Inc()
		return nil
	}
	telemetry.CacheHits.Inc()
	return &flag
}

// Set stores a flag under its key with the configured TTL. Failures are
// logged and swallowed; the next read simply misses.
func (c *Cache) Set(ctx context.Context, key string, flag *store.Flag) {
	raw, err := json.Marshal(flag)
	if err != nil {
		c.logger.Warn().Err(err).Str("flag", key).Msg("cache set: marshal failed")
		return
	}
	if err := c.kv.Set(ctx, keyPrefix+key, string(raw), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("flag", key).Msg("cache set failed")
	}
}

// Invalidate evicts the local entry for key. Idempotent: evicting an absent
// key is a no-op, which makes duplicate broadcast deliveries harmless.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if err := c.kv.Delete(ctx, keyPrefix+key); err != nil {
		c.logger.Warn().Err(err).Str("flag", key).Msg("cache invalidate failed")
	}
}

// InvalidateAll evicts every flag entry.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if err := c.kv.DeletePrefix(ctx, keyPrefix); err != nil {
		c.logger.Warn().Err(err).Msg("cache invalidate-all failed")
	}
}

// PublishInvalidation broadcasts key so every instance evicts its copy.
// Broadcast failure is logged and skipped; the TTL still bounds staleness.
func (c *Cache) PublishInvalidation(ctx context.Context, key string) {
	if err := c.bus.Publish(ctx, InvalidationTopic, key); err != nil {
		c.logger.Warn().Err(err).Str("flag", key).Msg("invalidation broadcast failed, relying on TTL")
	}
}

// SubscribeToInvalidations starts the long-lived listener. On each message
// the entry is evicted synchronously (cheap, idempotent) and onInvalidated,
// when set, is invoked on its own goroutine so a slow re-fetch never stalls
// delivery of subsequent messages.
func (c *Cache) SubscribeToInvalidations(ctx context.Context, onInvalidated func(key string)) error {
	return c.bus.Subscribe(ctx, InvalidationTopic, func(key string) {
		telemetry.InvalidationsReceived.Inc()
		c.Invalidate(ctx, key)
		if onInvalidated != nil {
			go onInvalidated(key)
		}
	})
}
