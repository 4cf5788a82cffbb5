package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"

	"github.com/redis/go-redis/v9"
)

// cacheKeyPrefix namespaces provider responses in Redis
const cacheKeyPrefix = "radar:business:"

// cachedBusiness keeps the raw payload, which CompetitorData hides from JSON
type cachedBusiness struct {
	Data models.CompetitorData `json:"data"`
	Raw  json.RawMessage       `json:"raw,omitempty"`
}

// Cache is a cache-aside Redis decorator. Redis errors never fail a fetch.
type Cache struct {
	next BusinessDataProvider
	rdb  redis.UniversalClient
	ttl  time.Duration
	log  logger.Logger
}

// NewCache wraps next with a Redis cache
func NewCache(next BusinessDataProvider, rdb redis.UniversalClient, ttl time.Duration, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, log: log}
}

// Fetch implements BusinessDataProvider
func (c *Cache) Fetch(ctx context.Context, businessID string) (*models.CompetitorData, error) {
	key := cacheKeyPrefix + businessID

	if val, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var cached cachedBusiness
		if err := json.Unmarshal([]byte(val), &cached); err == nil {
			data := cached.Data
			data.Raw = []byte(cached.Raw)
			return &data, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("ProviderCache: redis get failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	data, err := c.next.Fetch(ctx, businessID)
	if err != nil {
		return nil, err
	}

	entry := cachedBusiness{Data: *data}
	if json.Valid(data.Raw) {
		entry.Raw = data.Raw
	}
	payload, err := json.Marshal(entry)
	if err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn("ProviderCache: redis set failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	return data, nil
}

// Invalidate drops a cached business
func (c *Cache) Invalidate(ctx context.Context, businessID string) error {
	return c.rdb.Del(ctx, cacheKeyPrefix+businessID).Err()
}

// Status reports the wrapped provider's state plus the cache TTL
func (c *Cache) Status() map[string]interface{} {
	out := map[string]interface{}{}
	if r, ok := c.next.(interface{ Status() map[string]interface{} }); ok {
		out = r.Status()
	}
	out["cache_ttl_seconds"] = int(c.ttl.Seconds())
	return out
}
