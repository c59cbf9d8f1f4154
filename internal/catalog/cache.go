package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Cache keeps the rendered product list in Redis under a single key. The
// methods are no-ops on a nil *Cache so the service runs without Redis.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
	key    string
}

func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl, key: listCacheKey}
}

// Products returns the cached list. A miss yields ok=false and no error.
func (c *Cache) Products(ctx context.Context) (products []Product, ok bool, err error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("read product cache: %w", err)
	}
	if err := json.Unmarshal(raw, &products); err != nil {
		// a payload from an older release is treated as a miss
		return nil, false, nil
	}
	return products, true, nil
}

// StoreProducts replaces the cached list.
func (c *Cache) StoreProducts(ctx context.Context, products []Product) error {
	if c == nil {
		return nil
	}
	if products == nil {
		products = []Product{}
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode product cache: %w", err)
	}
	return c.client.Set(ctx, c.key, raw, c.ttl).Err()
}

// Drop removes the cached list so the next read hits Postgres.
func (c *Cache) Drop(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, c.key).Err()
}
