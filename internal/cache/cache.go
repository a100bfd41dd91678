package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService provides Redis-based caching operations
type CacheService struct {
	client *redis.Client
}

// NewCacheService creates a new cache service with the given Redis client
func NewCacheService(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

// Cache key prefixes
const (
	PrefixScanSession = "scan:session:"
	PrefixReceipt     = "receipt:"
	PrefixReceiptList = "receipts:page:"
)

// Default TTLs
const (
	TTLScanSession = 10 * time.Minute
	TTLReceipt     = 30 * time.Minute
	TTLReceiptList = 2 * time.Minute
)

// Get retrieves a cached value by key and unmarshals it into the target
func (c *CacheService) Get(ctx context.Context, key string, target interface{}) error {
	if c.client == nil {
		return fmt.Errorf("redis client not available")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(val), target)
}

// Set caches a value with the given key and TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return fmt.Errorf("redis client not available")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a cached value by key
func (c *CacheService) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// DeletePattern removes all cached values matching a pattern
func (c *CacheService) DeletePattern(ctx context.Context, pattern string) error {
	if c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// InvalidateSession drops the cached snapshot of a scan session
func (c *CacheService) InvalidateSession(ctx context.Context, sessionID string) error {
	return c.Delete(ctx, PrefixScanSession+sessionID)
}

// InvalidateReceiptLists drops all cached receipt list pages after a new
// receipt is stored
func (c *CacheService) InvalidateReceiptLists(ctx context.Context) error {
	return c.DeletePattern(ctx, PrefixReceiptList+"*")
}

// IsAvailable checks if the Redis client is connected and available
func (c *CacheService) IsAvailable() bool {
	if c.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}
