package category

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wb-margin-bot/pkg/wb"
)

type fakeClient struct {
	parents     []wb.ParentCategory
	subjects    []wb.Subject
	rates       []wb.CommissionRate
	err         error
	parentCalls int
	rateCalls   int
	lastQuery   wb.SubjectQuery
}

func (f *fakeClient) ParentCategories(context.Context) ([]wb.ParentCategory, error) {
	f.parentCalls++
	return f.parents, f.err
}

func (f *fakeClient) Subjects(_ context.Context, q wb.SubjectQuery) ([]wb.Subject, error) {
	f.lastQuery = q
	return f.subjects, f.err
}

func (f *fakeClient) Commissions(context.Context) ([]wb.CommissionRate, error) {
	f.rateCalls++
	return f.rates, f.err
}

func newService(c Client, overrides map[int]float64) *Service {
	return NewService(c, Options{
		CacheTTL:          time.Hour,
		DefaultCommission: 15,
		Overrides:         overrides,
	}, zap.NewNop())
}

func TestListParentCategories_FiltersAndSorts(t *testing.T) {
	rq := require.New(t)

	c := &fakeClient{parents: []wb.ParentCategory{
		{ID: 3, Name: "Электроника", IsVisible: true},
		{ID: 1, Name: "Архив", IsVisible: false},
		{ID: 2, Name: "Дом", IsVisible: true},
	}}
	s := newService(c, nil)

	cats, err := s.ListParentCategories(context.Background())
	rq.NoError(err)
	rq.Equal([]Category{{ID: 2, Name: "Дом"}, {ID: 3, Name: "Электроника"}}, cats)

	_, err = s.ListParentCategories(context.Background())
	rq.NoError(err)
	rq.Equal(1, c.parentCalls)
}

func TestListParentCategories_UpstreamError(t *testing.T) {
	s := newService(&fakeClient{err: &wb.StatusError{StatusCode: 401}}, nil)

	_, err := s.ListParentCategories(context.Background())
	require.ErrorIs(t, err, ErrUpstreamLookupFailed)

	var se *wb.StatusError
	require.ErrorAs(t, err, &se)
}

func TestSubjects(t *testing.T) {
	rq := require.New(t)

	c := &fakeClient{subjects: []wb.Subject{
		{SubjectID: 11, ParentID: 2, SubjectName: "Кружки", ParentName: "Посуда"},
		{SubjectID: 10, ParentID: 2, SubjectName: "Блюда", ParentName: "Посуда"},
	}}
	cats, err := newService(c, nil).Subjects(context.Background(), 2)
	rq.NoError(err)
	rq.Equal(2, c.lastQuery.ParentID)
	rq.Equal("Блюда", cats[0].Name)
	rq.Equal(2, cats[1].Parent)
}

func TestSearchByName(t *testing.T) {
	rq := require.New(t)

	c := &fakeClient{subjects: []wb.Subject{
		{SubjectID: 11, ParentID: 2, SubjectName: "Кружки"},
		{SubjectID: 11, ParentID: 2, SubjectName: "Кружки"},
	}}
	s := newService(c, nil)

	_, err := s.SearchByName(context.Background(), " к ")
	rq.ErrorIs(err, ErrQueryTooShort)

	cats, err := s.SearchByName(context.Background(), "  кружка ")
	rq.NoError(err)
	rq.Len(cats, 1)
	rq.Equal("кружка", c.lastQuery.Name)
	rq.Equal(searchLimit, c.lastQuery.Limit)
}

func TestCommission(t *testing.T) {
	c := &fakeClient{rates: []wb.CommissionRate{
		{ParentID: 2, SubjectID: 11, KgvpMarketplace: 19.5},
		{ParentID: 2, SubjectID: 12, KgvpMarketplace: 22},
	}}
	s := newService(c, map[int]float64{99: 7})

	testCases := []struct {
		name     string
		id       int
		percent  float64
		fallback bool
	}{
		{name: "subject", id: 11, percent: 19.5},
		{name: "parent takes highest", id: 2, percent: 22},
		{name: "override", id: 99, percent: 7},
		{name: "unknown", id: 5, percent: 15, fallback: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Commission(context.Background(), tc.id)
			require.NoError(t, err)
			require.Equal(t, Commission{CategoryID: tc.id, Percent: tc.percent, Fallback: tc.fallback}, got)
		})
	}

	require.Equal(t, 1, c.rateCalls)
}

func TestCommission_UpstreamFailureFallsBack(t *testing.T) {
	rq := require.New(t)

	s := newService(&fakeClient{err: errors.New("timeout")}, nil)

	got, err := s.Commission(context.Background(), 11)
	rq.ErrorIs(err, ErrUpstreamLookupFailed)
	rq.True(got.Fallback)
	rq.Equal(15.0, got.Percent)
}

func TestWarm(t *testing.T) {
	rq := require.New(t)

	c := &fakeClient{parents: []wb.ParentCategory{{ID: 1, Name: "Дом", IsVisible: true}}}
	s := newService(c, nil)

	rq.NoError(s.Warm(context.Background()))
	rq.NoError(s.Warm(context.Background()))
	rq.Equal(2, c.parentCalls)
	rq.Equal(2, c.rateCalls)

	c.err = errors.New("down")
	rq.ErrorIs(s.Warm(context.Background()), ErrUpstreamLookupFailed)
}
