package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	// TTL is negative for a key without expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Limiter is a fixed window counter per user and action.
type Limiter struct {
	counter Counter
	limit   int64
	window  time.Duration
}

func New(counter Counter, limit int64, window time.Duration) *Limiter {
	return &Limiter{
		counter: counter,
		limit:   limit,
		window:  window,
	}
}

// Allow counts one request and reports whether it fits into the current window.
func (l *Limiter) Allow(ctx context.Context, userID int64, action string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:%d:%s", userID, action)

	count, err := l.counter.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// the window starts with the first request
	if count == 1 {
		if _, err := l.counter.Expire(ctx, key, l.window); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	if count <= l.limit {
		return true, nil
	}

	// the key has no window when setting it failed on the first request
	ttl, err := l.counter.TTL(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl < 0 {
		if _, err := l.counter.Expire(ctx, key, l.window); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return false, nil
}

// MemoryCounter is a Counter for a single process without Redis.
type MemoryCounter struct {
	cache *cache.Cache
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{cache: cache.New(cache.NoExpiration, time.Minute)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	_ = m.cache.Add(key, int64(0), cache.NoExpiration)
	return m.cache.IncrementInt64(key, 1)
}

func (m *MemoryCounter) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return false, nil
	}
	m.cache.Set(key, v, expiration)
	return true, nil
}

func (m *MemoryCounter) TTL(_ context.Context, key string) (time.Duration, error) {
	_, expiration, ok := m.cache.GetWithExpiration(key)
	if !ok || expiration.IsZero() {
		return -1, nil
	}
	return time.Until(expiration), nil
}
