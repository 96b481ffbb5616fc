// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary string, backed by Redis or by process memory.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Result describes the state of a key's window after one hit.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter counts hits per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(hits, max int64, untilReset time.Duration) Result {
	res := Result{Allowed: hits <= max, Limit: max, Remaining: max - hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = untilReset
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Second
		}
	}
	return res
}

func windowKey(prefix, key string, winStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

// RedisLimiter is a fixed-window limiter shared by every instance that talks
// to the same Redis (INCR + EXPIRE).
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter allows max hits per key per window.
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

// Allow records one hit for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	redisKey := windowKey(l.prefix, key, winStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("counting hit: %w", err)
	}

	// set expiry on first hit
	remaining := ttl.Val()
	if incr.Val() == 1 || remaining < 0 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("setting window expiry: %w", err)
		}
		remaining = l.window
	}

	return newResult(incr.Val(), l.max, remaining), nil
}

// MemoryLimiter is a fixed-window limiter local to one process.
type MemoryLimiter struct {
	cache  *gocache.Cache
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter allows max hits per key per window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  gocache.New(window, time.Minute),
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the limiter's time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow records one hit for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	k := windowKey("", key, winStart)

	hits, err := l.hit(k)
	if err != nil {
		return Result{}, err
	}

	return newResult(hits, l.max, winStart.Add(l.window).Sub(now)), nil
}

func (l *MemoryLimiter) hit(k string) (int64, error) {
	for attempt := 0; attempt < 3; attempt++ {
		if err := l.cache.Add(k, int64(1), l.window); err == nil {
			return 1, nil
		}
		// Add fails when the key exists; it may expire before the increment.
		if n, err := l.cache.IncrementInt64(k, 1); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("counting hit for %q", k)
}
