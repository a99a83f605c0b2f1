package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/pkg/redis"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, redis.ErrNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func sampleState() dialog.State {
	st := dialog.State{
		Step:        dialog.StepLogistics,
		ProductName: "кружка",
		CategoryID:  7,
	}
	st.Draft.SetValue(margin.FieldCostPrice, 500)
	st.Draft.SetValue(margin.FieldSellingPrice, 1500)
	return st
}

func TestStores(t *testing.T) {
	kv := newFakeKV()

	stores := map[string]Store{
		"redis":  NewRedisStore(kv, 24*time.Hour),
		"memory": NewMemoryStore(time.Hour),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			rq := require.New(t)
			ctx := context.Background()

			_, err := s.Load(ctx, 42)
			rq.ErrorIs(err, ErrNotFound)

			st, err := LoadOrIdle(ctx, s, 42)
			rq.NoError(err)
			rq.Equal(dialog.StepIdle, st.Step)

			want := sampleState()
			rq.NoError(s.Save(ctx, 42, want))

			got, err := s.Load(ctx, 42)
			rq.NoError(err)
			rq.Equal(want.Step, got.Step)
			rq.Equal(want.ProductName, got.ProductName)
			rq.Equal(want.Draft.Values, got.Draft.Values)

			rq.NoError(s.Clear(ctx, 42))
			_, err = s.Load(ctx, 42)
			rq.ErrorIs(err, ErrNotFound)
		})
	}

	require.Equal(t, 24*time.Hour, kv.ttls["state:42"])
}

func TestMemoryStore_CopiesDraft(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	st := sampleState()
	rq.NoError(s.Save(ctx, 1, st))
	st.Draft.SetValue(margin.FieldCostPrice, 1)

	got, err := s.Load(ctx, 1)
	rq.NoError(err)
	v, _ := got.Draft.Value(margin.FieldCostPrice)
	rq.Equal(500.0, v)
}

func TestKeyedMutex(t *testing.T) {
	rq := require.New(t)
	k := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  = map[int64]int{}
		maxSeen int
	)

	for i := range 50 {
		wg.Add(1)
		go func(key int64) {
			defer wg.Done()

			unlock := k.Lock(key)
			defer unlock()

			mu.Lock()
			inside[key]++
			if inside[key] > maxSeen {
				maxSeen = inside[key]
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside[key]--
			mu.Unlock()
		}(int64(i % 3))
	}
	wg.Wait()

	rq.Equal(1, maxSeen)
	rq.Zero(k.Len())
}

func TestWizardStore(t *testing.T) {
	rq := require.New(t)
	s := NewWizardStore(time.Hour, margin.WizardDefaults{CommissionPercent: 15, StorageCost: 4.8})

	w := s.Create()
	rq.NotEmpty(w.ID)

	_, err := s.Get("missing")
	rq.ErrorIs(err, ErrWizardNotFound)

	updated, err := s.Update(w.ID, func(w *margin.Wizard) error {
		w.SetProduct("кружка")
		return w.Next()
	})
	rq.NoError(err)
	rq.Equal(margin.PageCosts, updated.Page)

	_, err = s.Update(w.ID, func(w *margin.Wizard) error {
		if err := w.Set(margin.FieldPackagingCost, "10"); err != nil {
			return err
		}
		return w.Next()
	})
	rq.Error(err)

	got, err := s.Get(w.ID)
	rq.NoError(err)
	rq.Equal(margin.PageCosts, got.Page)
	rq.True(got.Draft.Has(margin.FieldPackagingCost))
	rq.Equal(15.0, got.Defaults.CommissionPercent)
}
