package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache stores tenants in Redis so that lookups are shared across
// instances. Entries are JSON-encoded; decode failures are treated as
// cache misses.
type redisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Cache backed by the given Redis client. The
// client's lifecycle belongs to the caller; Close on the cache is a no-op.
func NewRedisCache(client redis.UniversalClient) Cache {
	return &redisCache{client: client, prefix: "tenant:"}
}

func (c *redisCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false
	}
	return &t, true
}

func (c *redisCache) Set(ctx context.Context, key string, t *Tenant, ttl time.Duration) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+key, data, ttl)
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, c.prefix+key)
}

func (c *redisCache) Close() error {
	return nil
}
