package marketplace

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragforge/ragforge/rlog"
)

// InfoCache caches PluginInfo by id for infoCacheTTL. It is backed by
// Redis when a client is supplied and reachable, falling back to a plain
// in-process map otherwise — the same disabled-fallback shape as the
// teacher's cache package, so a marketplace client works standalone and
// becomes multi-instance-safe simply by supplying a Redis address.
type InfoCache struct {
	ttl    time.Duration
	redis  *redis.Client
	mu     sync.Mutex
	local  map[string]cacheEntry
}

type cacheEntry struct {
	info    PluginInfo
	expires time.Time
}

const infoCacheTTL = 5 * time.Minute

// NewInfoCache constructs a cache with the default 5-minute TTL. redisAddr
// may be empty, in which case the cache is purely in-process.
func NewInfoCache(redisAddr string) *InfoCache {
	c := &InfoCache{ttl: infoCacheTTL, local: make(map[string]cacheEntry)}
	if redisAddr == "" {
		return c
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr, DialTimeout: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rlog.Marketplace().Warn().Err(err).Str("addr", redisAddr).
			Msg("redis unreachable, falling back to in-process info cache")
		return c
	}
	c.redis = client
	return c
}

// Close releases the Redis connection, if any.
func (c *InfoCache) Close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// Get returns the cached PluginInfo for id, if present and unexpired.
func (c *InfoCache) Get(ctx context.Context, id string) (PluginInfo, bool) {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, redisKey(id)).Result()
		if err != nil {
			return PluginInfo{}, false
		}
		var info PluginInfo
		if err := json.Unmarshal([]byte(val), &info); err != nil {
			return PluginInfo{}, false
		}
		return info, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[id]
	if !ok || time.Now().After(entry.expires) {
		return PluginInfo{}, false
	}
	return entry.info, true
}

// Set stores info under id with the cache's TTL.
func (c *InfoCache) Set(ctx context.Context, id string, info PluginInfo) {
	if c.redis != nil {
		data, err := json.Marshal(info)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, redisKey(id), data, c.ttl).Err(); err != nil {
			rlog.Marketplace().Warn().Err(err).Msg("failed to write info cache entry to redis")
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[id] = cacheEntry{info: info, expires: time.Now().Add(c.ttl)}
}

func redisKey(id string) string {
	return "ragforge:plugin-info:" + id
}
