package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// Cache keys shared by the service (writers) and the api (readers)
const (
	ServersKey  = "servers:available" // Purchasable inventory listing
	StatsKey    = "servers:stats"     // Inventory counters
	SettingsKey = "settings"          // Global settings row
)

// DashboardKey is the cache key of one user's dashboard
func DashboardKey(userID uint) string {
	return "dashboard:user:" + strconv.FormatUint(uint64(userID), 10)
}

// Cache is a JSON read cache over Redis. A nil *Cache is valid and caches nothing.
type Cache struct {
	rdb *redis.Client // Redis client
	ttl time.Duration // Default entry lifetime
}

// NewCache wraps rdb with a default TTL
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Client exposes the underlying Redis client
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// Get retrieves a value from Redis and unmarshals it into dest
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil // Caching disabled
	}
	val, err := c.rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// Set stores a value in Redis with the default TTL
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err() // Set value in Redis with TTL
}

// Delete removes keys from Redis
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// revokedKey is the deny-list entry of a token id
func revokedKey(tokenID string) string {
	return "revoked:jwt:" + tokenID
}

// Revoke deny-lists a token id until ttl elapses
func (c *Cache) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if c == nil || tokenID == "" || ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, revokedKey(tokenID), 1, ttl).Err()
}

// Revoked reports whether a token id was deny-listed
func (c *Cache) Revoked(ctx context.Context, tokenID string) (bool, error) {
	if c == nil || tokenID == "" {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
