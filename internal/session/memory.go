package session

import (
	"context"
	"maps"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"wb-margin-bot/internal/dialog"
)

// MemoryStore keeps dialogues in process. It is used when Redis is not configured.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Load(_ context.Context, userID int64) (dialog.State, error) {
	v, ok := s.cache.Get(strconv.FormatInt(userID, 10))
	if !ok {
		return dialog.State{}, ErrNotFound
	}
	return v.(dialog.State), nil
}

func (s *MemoryStore) Save(_ context.Context, userID int64, st dialog.State) error {
	// the draft map is shared with the caller
	st.Draft.Values = maps.Clone(st.Draft.Values)
	s.cache.Set(strconv.FormatInt(userID, 10), st, s.ttl)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.cache.Delete(strconv.FormatInt(userID, 10))
	return nil
}
