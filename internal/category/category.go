package category

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"wb-margin-bot/pkg/wb"
)

const (
	MinQueryLength = 2
	searchLimit    = 20

	keyParents     = "parents"
	keyCommissions = "commissions"
)

var (
	ErrQueryTooShort        = errors.New("query is too short")
	ErrUpstreamLookupFailed = errors.New("upstream lookup failed")
)

type Category struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Parent     int    `json:"parent,omitempty"`
	ParentName string `json:"parentName,omitempty"`
}

type Commission struct {
	CategoryID int     `json:"categoryId"`
	Percent    float64 `json:"commission"`
	// Fallback is set when Percent is the configured default, not a tariff.
	Fallback bool `json:"fallback"`
}

type Client interface {
	ParentCategories(ctx context.Context) ([]wb.ParentCategory, error)
	Subjects(ctx context.Context, q wb.SubjectQuery) ([]wb.Subject, error)
	Commissions(ctx context.Context) ([]wb.CommissionRate, error)
}

type Options struct {
	CacheTTL          time.Duration
	DefaultCommission float64
	Overrides         map[int]float64
}

// Service resolves categories and commissions through the marketplace API with a TTL cache.
type Service struct {
	client Client
	opts   Options
	cache  *cache.Cache
	group  singleflight.Group
	logger *zap.Logger
}

func NewService(client Client, opts Options, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		opts:   opts,
		cache:  cache.New(opts.CacheTTL, 10*time.Minute),
		logger: logger,
	}
}

func (s *Service) DefaultCommission() float64 {
	return s.opts.DefaultCommission
}

// ListParentCategories returns the visible top level categories sorted by name.
func (s *Service) ListParentCategories(ctx context.Context) ([]Category, error) {
	return cached(ctx, s, keyParents, func(ctx context.Context) ([]Category, error) {
		parents, err := s.client.ParentCategories(ctx)
		if err != nil {
			return nil, err
		}

		visible := lo.Filter(parents, func(p wb.ParentCategory, _ int) bool {
			return p.IsVisible
		})
		cats := lo.Map(visible, func(p wb.ParentCategory, _ int) Category {
			return Category{ID: p.ID, Name: p.Name}
		})
		sortByName(cats)

		return cats, nil
	})
}

// Subjects returns the subcategories of a parent category.
func (s *Service) Subjects(ctx context.Context, parentID int) ([]Category, error) {
	key := fmt.Sprintf("subjects:%d", parentID)

	return cached(ctx, s, key, func(ctx context.Context) ([]Category, error) {
		subjects, err := s.client.Subjects(ctx, wb.SubjectQuery{ParentID: parentID})
		if err != nil {
			return nil, err
		}

		cats := lo.Map(subjects, subjectToCategory)
		sortByName(cats)

		return cats, nil
	})
}

// SearchByName finds subjects matching a free text product name.
func (s *Service) SearchByName(ctx context.Context, name string) ([]Category, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinQueryLength {
		return nil, fmt.Errorf("%w: at least %d characters", ErrQueryTooShort, MinQueryLength)
	}

	key := "search:" + strings.ToLower(name)

	return cached(ctx, s, key, func(ctx context.Context) ([]Category, error) {
		subjects, err := s.client.Subjects(ctx, wb.SubjectQuery{Name: name, Limit: searchLimit})
		if err != nil {
			return nil, err
		}

		return lo.UniqBy(lo.Map(subjects, subjectToCategory), func(c Category) int {
			return c.ID
		}), nil
	})
}

// Commission returns the marketplace commission for a subject or parent category id. When the
// tariffs cannot be fetched it still returns the default percent, marked as fallback, together
// with an ErrUpstreamLookupFailed error.
func (s *Service) Commission(ctx context.Context, categoryID int) (Commission, error) {
	if pct, ok := s.opts.Overrides[categoryID]; ok {
		return Commission{CategoryID: categoryID, Percent: pct}, nil
	}

	fallback := Commission{CategoryID: categoryID, Percent: s.opts.DefaultCommission, Fallback: true}

	rates, err := cached(ctx, s, keyCommissions, s.loadCommissions)
	if err != nil {
		return fallback, err
	}

	if pct, ok := rates.bySubject[categoryID]; ok {
		return Commission{CategoryID: categoryID, Percent: pct}, nil
	}
	if pct, ok := rates.byParent[categoryID]; ok {
		return Commission{CategoryID: categoryID, Percent: pct}, nil
	}

	return fallback, nil
}

type commissionIndex struct {
	bySubject map[int]float64
	byParent  map[int]float64
}

func (s *Service) loadCommissions(ctx context.Context) (commissionIndex, error) {
	report, err := s.client.Commissions(ctx)
	if err != nil {
		return commissionIndex{}, err
	}

	idx := commissionIndex{
		bySubject: make(map[int]float64, len(report)),
		byParent:  make(map[int]float64),
	}
	for _, r := range report {
		idx.bySubject[r.SubjectID] = r.KgvpMarketplace
		// a parent gets the highest rate among its subjects
		if r.KgvpMarketplace > idx.byParent[r.ParentID] {
			idx.byParent[r.ParentID] = r.KgvpMarketplace
		}
	}
	return idx, nil
}

// Warm refreshes the parent categories and the commission report.
func (s *Service) Warm(ctx context.Context) error {
	s.cache.Delete(keyParents)
	s.cache.Delete(keyCommissions)

	var errs []error
	if _, err := s.ListParentCategories(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := cached(ctx, s, keyCommissions, s.loadCommissions); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		return v.(T), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		s.logger.Warn("category lookup failed", zap.String("key", key), zap.Error(err))
		return zero, fmt.Errorf("%w: %w", ErrUpstreamLookupFailed, err)
	}

	return v.(T), nil
}

func subjectToCategory(s wb.Subject, _ int) Category {
	return Category{
		ID:         s.SubjectID,
		Name:       s.SubjectName,
		Parent:     s.ParentID,
		ParentName: s.ParentName,
	}
}

func sortByName(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Name < cats[j].Name
	})
}
