package redisx

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer is a set-if-absent store with expiry, used for idempotency keys
// and event dedup.
type Claimer interface {
	// Claim stores value under key when the key is free. Otherwise it
	// reports the value already stored and claimed=false.
	Claim(ctx context.Context, key, value string, ttl time.Duration) (current string, claimed bool, err error)
	// Release frees a key so a failed attempt can be retried.
	Release(ctx context.Context, key string) error
}

type RedisClaimer struct{ RDB *redis.Client }

func (c RedisClaimer) Claim(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := c.RDB.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, true, nil
	}
	cur, err := c.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// key expired di antara SETNX dan GET; coba sekali lagi
		ok, err = c.RDB.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return value, true, nil
		}
		cur, err = c.RDB.Get(ctx, key).Result()
	}
	return cur, false, err
}

func (c RedisClaimer) Release(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, key).Err()
}

// MemoryClaimer is the in-process Claimer used when REDIS_ADDR is empty.
type MemoryClaimer struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	value string
	until time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{m: make(map[string]memEntry), now: time.Now}
}

// WithClock replaces the time source (tests).
func (c *MemoryClaimer) WithClock(now func() time.Time) *MemoryClaimer {
	c.now = now
	return c
}

func (c *MemoryClaimer) Claim(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.m[key]; ok && now.Before(e.until) {
		return e.value, false, nil
	}
	c.m[key] = memEntry{value: value, until: now.Add(ttl)}
	return value, true, nil
}

func (c *MemoryClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}
