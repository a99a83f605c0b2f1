package session

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"wb-margin-bot/internal/margin"
)

var ErrWizardNotFound = errors.New("wizard not found")

// WizardStore keeps web wizards by id until they expire.
type WizardStore struct {
	cache    *cache.Cache
	ttl      time.Duration
	defaults margin.WizardDefaults
	mu       sync.Mutex
}

func NewWizardStore(ttl time.Duration, defaults margin.WizardDefaults) *WizardStore {
	return &WizardStore{
		cache:    cache.New(ttl, 10*time.Minute),
		ttl:      ttl,
		defaults: defaults,
	}
}

func (s *WizardStore) Create() *margin.Wizard {
	w := margin.NewWizard(uuid.NewString(), s.defaults)
	s.cache.Set(w.ID, clone(w), s.ttl)
	return w
}

func (s *WizardStore) Get(id string) (*margin.Wizard, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrWizardNotFound
	}
	return clone(v.(*margin.Wizard)), nil
}

// Update applies fn to a copy of the wizard and stores it back. The copy is kept even when fn
// fails, since a failed Next still records the edits made before it.
func (s *WizardStore) Update(id string, fn func(w *margin.Wizard) error) (*margin.Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	fnErr := fn(w)
	s.cache.Set(id, clone(w), s.ttl)

	return w, fnErr
}

func clone(w *margin.Wizard) *margin.Wizard {
	c := *w
	c.Draft.Values = maps.Clone(w.Draft.Values)
	return &c
}
