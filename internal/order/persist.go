package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Persister stores the persisted part of a draft under a session key.
type Persister interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context, key string) (*Persisted, error)
	Save(ctx context.Context, key string, p Persisted) error
	Delete(ctx context.Context, key string) error
}

// MemoryPersister keeps drafts in process memory.
type MemoryPersister struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemoryPersister constructs an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{m: make(map[string][]byte)}
}

// Load decodes the stored snapshot.
func (p *MemoryPersister) Load(_ context.Context, key string) (*Persisted, error) {
	p.mu.Lock()
	b, ok := p.m[key]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var out Persisted
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save stores an encoded snapshot.
func (p *MemoryPersister) Save(_ context.Context, key string, v Persisted) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.m[key] = b
	p.mu.Unlock()
	return nil
}

// Delete drops the snapshot.
func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

// DraftTTL bounds how long an abandoned draft is kept in Redis.
const DraftTTL = 7 * 24 * time.Hour

const draftKeyPrefix = "order:draft:"

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisPersister stores drafts as JSON strings.
type RedisPersister struct {
	rdb redisKV
	ttl time.Duration
}

// NewRedisPersister constructs a Redis-backed persister; ttl <= 0 means DraftTTL.
func NewRedisPersister(rdb redisKV, ttl time.Duration) *RedisPersister {
	if ttl <= 0 {
		ttl = DraftTTL
	}
	return &RedisPersister{rdb: rdb, ttl: ttl}
}

// Load reads and decodes a draft.
func (p *RedisPersister) Load(ctx context.Context, key string) (*Persisted, error) {
	b, err := p.rdb.Get(ctx, draftKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out Persisted
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save encodes and writes a draft, refreshing its TTL.
func (p *RedisPersister) Save(ctx context.Context, key string, v Persisted) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, draftKeyPrefix+key, b, p.ttl).Err()
}

// Delete removes a draft.
func (p *RedisPersister) Delete(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, draftKeyPrefix+key).Err()
}
