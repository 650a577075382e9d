// Package cache is the fast-path store of finished transformations keyed by
// (original image key, style). Entries are advisory: callers treat any error as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces transformation entries.
const KeyPrefix = "transform:"

// DefaultTTL keeps entries for a month; the durable ledger backfills them after expiry.
const DefaultTTL = 30 * 24 * time.Hour

// Entry is one cached transformation result.
type Entry struct {
	URL              string `json:"url"`
	Provider         string `json:"provider"`
	TransformationID string `json:"transformationId"`
}

// Cache reads and writes entries.
type Cache interface {
	// Get returns the entry for (key, style); (nil, nil) on a miss.
	Get(ctx context.Context, key, style string) (*Entry, error)
	// Set stores e under (key, style).
	Set(ctx context.Context, key, style string, e Entry) error
}

// Key builds the storage key for (key, style).
func Key(key, style string) string { return KeyPrefix + key + ":" + style }

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Redis stores entries as JSON strings.
type Redis struct {
	rdb kv
	ttl time.Duration
}

// NewRedis constructs a Redis cache; ttl <= 0 uses DefaultTTL.
func NewRedis(rdb kv, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key, style string) (*Entry, error) {
	raw, err := c.rdb.Get(ctx, Key(key, style)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Redis) Set(ctx context.Context, key, style string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, Key(key, style), raw, c.ttl).Err()
}

// Memory is an in-process cache used when Redis is not configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string]Entry
}

// NewMemory constructs an empty in-process cache.
func NewMemory() *Memory { return &Memory{m: make(map[string]Entry)} }

func (c *Memory) Get(_ context.Context, key, style string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[Key(key, style)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *Memory) Set(_ context.Context, key, style string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[Key(key, style)] = e
	return nil
}
