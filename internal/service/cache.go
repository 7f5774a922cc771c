package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// AnalyticsCache caches computed cohort analytics keyed by snapshot
// fingerprint. Tier 1 is an in-process LRU for hot fingerprints; tier 2 is an
// optional Redis cache shared across instances. Because fingerprints are
// content-addressed, entries never go stale under filter changes: a changed
// filter set is simply a different key.
type AnalyticsCache struct {
	memory    *lru.Cache[string, *analyticsEntry]
	redis     *redis.Client
	memoryTTL time.Duration
	redisTTL  time.Duration
	logger    *logrus.Logger

	statsMu sync.Mutex
	stats   CacheStats
}

// CacheStats reports cache effectiveness per tier
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
}

type analyticsEntry struct {
	analytics *domain.CohortAnalytics
	expiry    time.Time
}

// NewAnalyticsCache creates the two-tier cache. A nil Redis client disables
// the second tier; the memory tier always runs.
func NewAnalyticsCache(config domain.CacheConfig, redisClient *redis.Client, logger *logrus.Logger) (*AnalyticsCache, error) {
	size := config.MemorySize
	if size <= 0 {
		size = 512
	}
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	memory, err := lru.New[string, *analyticsEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &AnalyticsCache{
		memory:    memory,
		redis:     redisClient,
		memoryTTL: ttl,
		redisTTL:  4 * ttl,
		logger:    logger,
	}, nil
}

// NewRedisClient connects a Redis client from cache configuration
func NewRedisClient(config domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Get returns the cached analytics for a fingerprint, checking the memory
// tier first and promoting Redis hits into memory.
func (c *AnalyticsCache) Get(ctx context.Context, fingerprint string) (*domain.CohortAnalytics, bool) {
	if entry, ok := c.memory.Get(fingerprint); ok {
		if time.Now().Before(entry.expiry) {
			c.increment(func(s *CacheStats) { s.MemoryHits++ })
			return entry.analytics, true
		}
		c.memory.Remove(fingerprint)
	}
	c.increment(func(s *CacheStats) { s.MemoryMisses++ })

	if c.redis == nil {
		return nil, false
	}

	val, err := c.redis.Get(ctx, c.key(fingerprint)).Result()
	if err == redis.Nil {
		c.increment(func(s *CacheStats) { s.RedisMisses++ })
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Redis analytics cache read failed")
		c.increment(func(s *CacheStats) { s.RedisMisses++ })
		return nil, false
	}

	var analytics domain.CohortAnalytics
	if err := json.Unmarshal([]byte(val), &analytics); err != nil {
		// Drop the corrupted entry rather than serving it.
		c.redis.Del(ctx, c.key(fingerprint))
		c.increment(func(s *CacheStats) { s.RedisMisses++ })
		return nil, false
	}

	c.increment(func(s *CacheStats) { s.RedisHits++ })
	c.storeInMemory(fingerprint, &analytics)
	return &analytics, true
}

// Set stores analytics in both tiers
func (c *AnalyticsCache) Set(ctx context.Context, fingerprint string, analytics *domain.CohortAnalytics) {
	c.storeInMemory(fingerprint, analytics)

	if c.redis == nil {
		return
	}

	data, err := json.Marshal(analytics)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal analytics for cache")
		return
	}
	if err := c.redis.Set(ctx, c.key(fingerprint), data, c.redisTTL).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis analytics cache write failed")
	}
}

// Invalidate drops a fingerprint from both tiers
func (c *AnalyticsCache) Invalidate(ctx context.Context, fingerprint string) {
	c.memory.Remove(fingerprint)
	if c.redis != nil {
		c.redis.Del(ctx, c.key(fingerprint))
	}
}

// Stats returns a copy of the current cache statistics
func (c *AnalyticsCache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Close releases the Redis connection when one is configured
func (c *AnalyticsCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (c *AnalyticsCache) storeInMemory(fingerprint string, analytics *domain.CohortAnalytics) {
	c.memory.Add(fingerprint, &analyticsEntry{
		analytics: analytics,
		expiry:    time.Now().Add(c.memoryTTL),
	})
}

func (c *AnalyticsCache) key(fingerprint string) string {
	return "analytics:cohort:" + fingerprint
}

func (c *AnalyticsCache) increment(apply func(*CacheStats)) {
	c.statsMu.Lock()
	apply(&c.stats)
	c.statsMu.Unlock()
}
