package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	f.expires[key] = expiration
	return true, nil
}

func (f *fakeCounter) TTL(_ context.Context, key string) (time.Duration, error) {
	if ttl, ok := f.expires[key]; ok {
		return ttl, nil
	}
	return -1, nil
}

// flakyExpireCounter fails the first Expire call.
type flakyExpireCounter struct {
	*MemoryCounter
	failed bool
}

func (c *flakyExpireCounter) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	if !c.failed {
		c.failed = true
		return false, errors.New("i/o timeout")
	}
	return c.MemoryCounter.Expire(ctx, key, expiration)
}

func TestLimiter_Allow(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	c := newFakeCounter()
	l := New(c, 3, time.Minute)

	for range 3 {
		ok, err := l.Allow(ctx, 7, "message")
		rq.NoError(err)
		rq.True(ok)
	}

	ok, err := l.Allow(ctx, 7, "message")
	rq.NoError(err)
	rq.False(ok)

	ok, err = l.Allow(ctx, 8, "message")
	rq.NoError(err)
	rq.True(ok)

	rq.Equal(time.Minute, c.expires["ratelimit:7:message"])
}

func TestLimiter_CounterError(t *testing.T) {
	c := newFakeCounter()
	c.err = errors.New("connection refused")

	_, err := New(c, 3, time.Minute).Allow(context.Background(), 1, "message")
	require.Error(t, err)
}

func TestLimiter_Disabled(t *testing.T) {
	ok, err := New(nil, 0, time.Minute).Allow(context.Background(), 1, "message")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCounter_WindowExpires(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	l := New(NewMemoryCounter(), 1, 50*time.Millisecond)

	ok, err := l.Allow(ctx, 1, "message")
	rq.NoError(err)
	rq.True(ok)

	ok, err = l.Allow(ctx, 1, "message")
	rq.NoError(err)
	rq.False(ok)

	time.Sleep(80 * time.Millisecond)

	ok, err = l.Allow(ctx, 1, "message")
	rq.NoError(err)
	rq.True(ok)
}

func TestLimiter_RestoresLostWindow(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	l := New(&flakyExpireCounter{MemoryCounter: NewMemoryCounter()}, 3, 50*time.Millisecond)

	_, err := l.Allow(ctx, 1, "message")
	rq.Error(err)

	for range 2 {
		ok, err := l.Allow(ctx, 1, "message")
		rq.NoError(err)
		rq.True(ok)
	}

	ok, err := l.Allow(ctx, 1, "message")
	rq.NoError(err)
	rq.False(ok)

	rq.Eventually(func() bool {
		ok, err := l.Allow(ctx, 1, "message")
		return err == nil && ok
	}, time.Second, 20*time.Millisecond)
}
