package dbsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// OrderCache stores computed table orders by schema hash.
type OrderCache interface {
	Get(ctx context.Context, hash string) ([]string, bool, error)
	Set(ctx context.Context, hash string, order []string) error
}

// MemoryCache is an in-process OrderCache.
type MemoryCache struct {
	mu     sync.RWMutex
	orders map[string][]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{orders: make(map[string][]string)}
}

func (c *MemoryCache) Get(_ context.Context, hash string) ([]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	order, ok := c.orders[hash]
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), order...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, hash string, order []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[hash] = append([]string(nil), order...)
	return nil
}

// RedisCache shares table orders between processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a redis backed cache. ttl <= 0 keeps entries until
// evicted.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "backoffice:sync:order:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, hash string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+hash).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var order []string
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (c *RedisCache) Set(ctx context.Context, hash string, order []string) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+hash, raw, c.ttl).Err()
}
