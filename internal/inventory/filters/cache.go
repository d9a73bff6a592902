// Package filters caches the per-tenant balance filter choices in Redis.
//
// Each tenant has a version counter. Invalidate bumps it, which orphans every
// cached entry of the previous version; orphans expire through their TTL.
package filters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "syncstock:choices"

// Cache implements the balance service's choices cache and the engine's
// invalidator. A nil *Cache loads straight from the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *logger.Logger
}

// NewCache creates a cache with entries living for ttl
func NewCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, logger: log.WithComponent("filters")}
}

// Get returns the cached choices for tenantID, calling load on a miss.
// Concurrent misses for the same tenant share one load. Redis faults degrade
// to an uncached load.
func (c *Cache) Get(ctx context.Context, tenantID string, load func(ctx context.Context) (*domain.FilterChoices, error)) (*domain.FilterChoices, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}

	ver, err := c.version(ctx, tenantID)
	if err != nil {
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("filter cache unavailable")
		return load(ctx)
	}
	key := entryKey(tenantID, ver)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var choices domain.FilterChoices
		if err := json.Unmarshal(cached, &choices); err == nil {
			return &choices, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("filter cache read failed")
		return load(ctx)
	}

	res := c.group.DoChan(key, func() (interface{}, error) {
		choices, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(choices); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("filter cache write failed")
			}
		}
		return choices, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*domain.FilterChoices), nil
	}
}

// Invalidate bumps the tenant's version so the next Get reloads
func (c *Cache) Invalidate(ctx context.Context, tenantID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("filters: bump version: %w", err)
	}
	return nil
}

func (c *Cache) version(ctx context.Context, tenantID string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return ver, err
}

func versionKey(tenantID string) string {
	return fmt.Sprintf("%s:%s:version", keyPrefix, tenantID)
}

func entryKey(tenantID string, ver int64) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, tenantID, ver)
}
