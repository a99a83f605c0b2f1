package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/pkg/redis"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type RedisStore struct {
	kv  KV
	ttl time.Duration
}

func NewRedisStore(kv KV, ttl time.Duration) *RedisStore {
	return &RedisStore{
		kv:  kv,
		ttl: ttl,
	}
}

func (s *RedisStore) Save(ctx context.Context, userID int64, st dialog.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.kv.Set(ctx, stateKey(userID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, userID int64) (dialog.State, error) {
	data, err := s.kv.Get(ctx, stateKey(userID))
	if errors.Is(err, redis.ErrNotFound) {
		return dialog.State{}, ErrNotFound
	}
	if err != nil {
		return dialog.State{}, fmt.Errorf("failed to get state: %w", err)
	}

	var st dialog.State
	if err := json.Unmarshal(data, &st); err != nil {
		return dialog.State{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return st, nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.kv.Del(ctx, stateKey(userID)); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

func stateKey(userID int64) string {
	return fmt.Sprintf("state:%d", userID)
}
