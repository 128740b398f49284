package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	catalogCachePrefix     = "catalog:v:"
	catalogCacheVersionKey = "catalog:version"
)

// CatalogCache is a best-effort read-through cache for catalog reads.
// A failing cache behaves like a miss.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context)
}

// RedisCatalogCache stores catalog entries in Redis under a version prefix;
// invalidation bumps the version so stale entries are never read again.
type RedisCatalogCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient parses a redis:// URL into a client
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedisCatalogCache creates a cache backed by client
func NewRedisCatalogCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCatalogCache {
	return &RedisCatalogCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCatalogCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, catalogCacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *RedisCatalogCache) versionedKey(ctx context.Context, key string) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d:%s", catalogCachePrefix, ver, key), nil
}

// Get returns the cached value for key
func (c *RedisCatalogCache) Get(ctx context.Context, key string) ([]byte, bool) {
	vkey, err := c.versionedKey(ctx, key)
	if err != nil {
		c.logger.Debug("catalog cache unavailable", zap.Error(err))
		return nil, false
	}

	data, err := c.client.Get(ctx, vkey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set stores value under key for the configured TTL
func (c *RedisCatalogCache) Set(ctx context.Context, key string, value []byte) {
	vkey, err := c.versionedKey(ctx, key)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, vkey, value, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to write catalog cache", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached catalog entry
func (c *RedisCatalogCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, catalogCacheVersionKey).Err(); err != nil {
		c.logger.Error("failed to invalidate catalog cache", zap.Error(err))
	}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCatalogCache is an in-process CatalogCache used in tests and when Redis is not configured.
// Entries expire after ttl; a zero ttl keeps them until invalidated.
type MemoryCatalogCache struct {
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	hits    int
	mu      sync.Mutex
}

// NewMemoryCatalogCache creates an empty in-memory cache
func NewMemoryCatalogCache(ttl time.Duration) *MemoryCatalogCache {
	return &MemoryCatalogCache{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

// Get returns the cached value for key
func (m *MemoryCatalogCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	m.hits++
	return e.value, true
}

// Set stores value under key for the configured TTL
func (m *MemoryCatalogCache) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[key] = e
}

// Invalidate drops every entry
func (m *MemoryCatalogCache) Invalidate(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
}

// Hits returns the number of cache hits served
func (m *MemoryCatalogCache) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}
