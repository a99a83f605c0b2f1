package wb

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// StatusError is a non-2xx answer of the Wildberries API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wb api: status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	ContentBaseURL string
	CommonBaseURL  string
	Token          string
	Timeout        time.Duration
}

// Client talks to the content and tariffs APIs of Wildberries.
type Client struct {
	content *resty.Client
	common  *resty.Client
}

func NewClient(opts Options) *Client {
	return &Client{
		content: newResty(opts.ContentBaseURL, opts.Token, opts.Timeout),
		common:  newResty(opts.CommonBaseURL, opts.Token, opts.Timeout),
	}
}

func newResty(baseURL, token string, timeout time.Duration) *resty.Client {
	c := resty.New()
	c.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	// the seller token goes without the Bearer prefix
	if token != "" {
		c.SetHeader("Authorization", token)
	}
	return c
}

type ParentCategory struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsVisible bool   `json:"isVisible"`
}

type Subject struct {
	SubjectID   int    `json:"subjectID"`
	ParentID    int    `json:"parentID"`
	SubjectName string `json:"subjectName"`
	ParentName  string `json:"parentName"`
}

type CommissionRate struct {
	ParentID        int     `json:"parentID"`
	ParentName      string  `json:"parentName"`
	SubjectID       int     `json:"subjectID"`
	SubjectName     string  `json:"subjectName"`
	KgvpMarketplace float64 `json:"kgvpMarketplace"`
	KgvpSupplier    float64 `json:"kgvpSupplier"`
}

type envelope[T any] struct {
	Data      T      `json:"data"`
	Error     bool   `json:"error"`
	ErrorText string `json:"errorText"`
}

type SubjectQuery struct {
	ParentID int
	Name     string
	Limit    int
}

func (c *Client) ParentCategories(ctx context.Context) ([]ParentCategory, error) {
	result := new(envelope[[]ParentCategory])

	if err := get(ctx, c.content, "/content/v2/object/parent/all", nil, result); err != nil {
		return nil, fmt.Errorf("parent categories: %w", err)
	}
	return result.Data, nil
}

func (c *Client) Subjects(ctx context.Context, q SubjectQuery) ([]Subject, error) {
	params := map[string]string{"locale": "ru"}
	if q.ParentID > 0 {
		params["parentID"] = strconv.Itoa(q.ParentID)
	}
	if q.Name != "" {
		params["name"] = q.Name
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	result := new(envelope[[]Subject])
	if err := get(ctx, c.content, "/content/v2/object/all", params, result); err != nil {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	return result.Data, nil
}

// Commissions returns the marketplace commission report for every subject.
func (c *Client) Commissions(ctx context.Context) ([]CommissionRate, error) {
	result := new(struct {
		Report []CommissionRate `json:"report"`
	})

	params := map[string]string{"locale": "ru"}
	if err := get(ctx, c.common, "/api/v1/tariffs/commission", params, result); err != nil {
		return nil, fmt.Errorf("commissions: %w", err)
	}
	return result.Report, nil
}

type apiFlag interface {
	failed() (bool, string)
}

func (e *envelope[T]) failed() (bool, string) {
	return e.Error, e.ErrorText
}

func get(ctx context.Context, c *resty.Client, path string, params map[string]string, result any) error {
	resp, err := c.R().
		SetContext(ctx).
		SetQueryParams(params).
		ForceContentType("application/json").
		SetResult(result).
		Get(path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}

	if f, ok := result.(apiFlag); ok {
		if failed, text := f.failed(); failed {
			return &StatusError{StatusCode: resp.StatusCode(), Body: text}
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
