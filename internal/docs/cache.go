package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the last successful document listing.
type Cache interface {
	Get(ctx context.Context) ([]Document, time.Time, error)
	Set(ctx context.Context, documents []Document) error
	Clear(ctx context.Context) error
}

// MemoryCache is a process-local cache, the default for single-instance
// deployments.
type MemoryCache struct {
	mu        sync.RWMutex
	documents []Document
	cachedAt  time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(ctx context.Context) ([]Document, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.documents == nil {
		return nil, time.Time{}, fmt.Errorf("document cache is empty")
	}
	out := make([]Document, len(c.documents))
	copy(out, c.documents)
	return out, c.cachedAt, nil
}

func (c *MemoryCache) Set(ctx context.Context, documents []Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.documents = make([]Document, len(documents))
	copy(c.documents, documents)
	c.cachedAt = time.Now().UTC()
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.documents = nil
	c.cachedAt = time.Time{}
	return nil
}

const redisCacheKey = "eval-studio:docs:catalog"

// RedisCache shares the last-known-good listing across server instances.
type RedisCache struct {
	client *redis.Client
}

// RedisCacheConfig holds Redis connection settings.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache creates a Redis-backed document cache.
func NewRedisCache(cfg RedisCacheConfig) *RedisCache {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

type cachedListing struct {
	CachedAt  time.Time  `json:"cached_at"`
	Documents []Document `json:"documents"`
}

func (c *RedisCache) Get(ctx context.Context) ([]Document, time.Time, error) {
	data, err := c.client.Get(ctx, redisCacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, time.Time{}, fmt.Errorf("document cache is empty")
		}
		return nil, time.Time{}, fmt.Errorf("failed to read document cache: %w", err)
	}

	var listing cachedListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode document cache: %w", err)
	}
	return listing.Documents, listing.CachedAt, nil
}

func (c *RedisCache) Set(ctx context.Context, documents []Document) error {
	data, err := json.Marshal(cachedListing{
		CachedAt:  time.Now().UTC(),
		Documents: documents,
	})
	if err != nil {
		return fmt.Errorf("failed to encode document cache: %w", err)
	}

	// No TTL: the whole point is surviving long upstream outages.
	if err := c.client.Set(ctx, redisCacheKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write document cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, redisCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to clear document cache: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
