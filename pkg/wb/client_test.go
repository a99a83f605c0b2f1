package wb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		ContentBaseURL: srv.URL,
		CommonBaseURL:  srv.URL + "/",
		Token:          "secret",
		Timeout:        5 * time.Second,
	})
}

func TestClient_ParentCategories(t *testing.T) {
	rq := require.New(t)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rq.Equal("/content/v2/object/parent/all", r.URL.Path)
		rq.Equal("secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":479,"name":"Электроника","isVisible":true},{"id":1,"name":"Скрытая","isVisible":false}],"error":false,"errorText":""}`))
	})

	cats, err := c.ParentCategories(context.Background())
	rq.NoError(err)
	rq.Equal([]ParentCategory{
		{ID: 479, Name: "Электроника", IsVisible: true},
		{ID: 1, Name: "Скрытая"},
	}, cats)
}

func TestClient_Subjects(t *testing.T) {
	rq := require.New(t)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rq.Equal("/content/v2/object/all", r.URL.Path)
		rq.Equal("кружка", r.URL.Query().Get("name"))
		rq.Equal("10", r.URL.Query().Get("limit"))
		rq.Empty(r.URL.Query().Get("parentID"))

		_, _ = w.Write([]byte(`{"data":[{"subjectID":2560,"parentID":1234,"subjectName":"Кружки","parentName":"Посуда"}],"error":false}`))
	})

	subjects, err := c.Subjects(context.Background(), SubjectQuery{Name: "кружка", Limit: 10})
	rq.NoError(err)
	rq.Len(subjects, 1)
	rq.Equal(2560, subjects[0].SubjectID)
	rq.Equal("Посуда", subjects[0].ParentName)
}

func TestClient_Commissions(t *testing.T) {
	rq := require.New(t)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rq.Equal("/api/v1/tariffs/commission", r.URL.Path)
		rq.Equal("ru", r.URL.Query().Get("locale"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"report":[{"parentID":1234,"subjectID":2560,"kgvpMarketplace":19.5,"kgvpSupplier":17}]}`))
	})

	rates, err := c.Commissions(context.Background())
	rq.NoError(err)
	rq.Len(rates, 1)
	rq.Equal(19.5, rates[0].KgvpMarketplace)
}

func TestClient_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"title":"unauthorized"}`},
		{name: "server error", status: http.StatusBadGateway, body: `oops`},
		{name: "error flag", status: http.StatusOK, body: `{"data":null,"error":true,"errorText":"bad request"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.ParentCategories(context.Background())
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tc.status, se.StatusCode)
		})
	}
}
