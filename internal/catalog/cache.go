package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

const productKeyPrefix = "catalog:product:v1:"

// Cache keeps product definitions in Redis as JSON. A nil Cache or client
// disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a product cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func productKey(id string) string { return productKeyPrefix + id }

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Products reads ids in one MGET. Entries that are absent or unreadable are
// returned as misses.
func (c *Cache) Products(ctx context.Context, ids []string) ([]pricing.Product, []string, error) {
	if !c.enabled() || len(ids) == 0 {
		return nil, ids, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, err
	}
	found := make([]pricing.Product, 0, len(ids))
	var misses []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var p pricing.Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil || p.ID != ids[i] {
			misses = append(misses, ids[i])
			continue
		}
		found = append(found, p)
	}
	return found, misses, nil
}

// Store writes products with the configured TTL in one pipeline.
func (c *Cache) Store(ctx context.Context, products ...pricing.Product) error {
	if !c.enabled() || len(products) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range products {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			pipe.Set(ctx, productKey(p.ID), data, c.ttl)
		}
		return nil
	})
	return err
}

// Invalidate drops cached products, e.g. after a catalog edit.
func (c *Cache) Invalidate(ctx context.Context, ids ...string) error {
	if !c.enabled() || len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
