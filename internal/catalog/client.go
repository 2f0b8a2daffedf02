// Package catalog downloads dataset metadata from the Socrata Discovery
// API (GET /api/catalog/v1).
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/trace"
	"github.com/klauspost/compress/gzhttp"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "http://api.us.socrata.com"
	DefaultDomain  = "data.cityofnewyork.us"
	DefaultLimit   = 10000
	DefaultOrder   = "updatedAt"

	catalogPath    = "/api/catalog/v1"
	defaultTimeout = 2 * time.Minute
)

// Query selects the datasets to list
type Query struct {
	Domains       []string
	SearchContext string
	Limit         int
	Order         string
}

// DefaultQuery lists every dataset of the NYC portal
func DefaultQuery() Query {
	return Query{
		Domains:       []string{DefaultDomain},
		SearchContext: DefaultDomain,
		Limit:         DefaultLimit,
		Order:         DefaultOrder,
	}
}

func (q Query) params() map[string]string {
	p := map[string]string{
		"domains": strings.Join(q.Domains, ","),
		"limit":   strconv.Itoa(q.Limit),
	}
	if q.SearchContext != "" {
		p["search_context"] = q.SearchContext
	}
	if q.Order != "" {
		p["order"] = q.Order
	}
	return p
}

// Response is the decoded catalog listing
type Response struct {
	Results       []model.RawEntry
	ResultSetSize int64
}

// StatusError is a non-2xx answer from the catalog
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("catalog returned %d: %s", e.StatusCode, body)
}

// Temporary reports whether retrying may help
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// Fetcher is what the fetch stage needs from a catalog
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*Response, error)
}

// Config for Client
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
	Logger    *slog.Logger
}

// Client talks to the catalog API
type Client struct {
	http  *resty.Client
	retry RetryPolicy
	log   *slog.Logger
}

// New creates a catalog client. Responses are requested gzip-compressed.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	hc := &http.Client{
		Timeout: cfg.Timeout,
		Transport: gzhttp.Transport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			TLSHandshakeTimeout: 10 * time.Second,
		}),
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:  rc,
		retry: cfg.Retry,
		log:   cfg.Logger,
	}
}

// Fetch downloads the listing, retrying transient failures. 4xx answers
// other than 408 and 429 fail immediately.
func (c *Client) Fetch(ctx context.Context, q Query) (*Response, error) {
	tr := trace.FromContext(ctx)
	c.log.Info("downloading catalog", "url", c.http.BaseURL+catalogPath, "domains", q.Domains)

	attempt := 0
	res, err := Retry(ctx, c.retry, c.log, func() (*Response, error) {
		attempt++
		return c.fetchOnce(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog after %d attempt(s): %w", attempt, err)
	}

	c.log.Info("catalog downloaded", "results", len(res.Results), "result_set_size", res.ResultSetSize)
	tr.RecordSpan("Catalog.Fetch", map[string]any{
		"attempts": attempt,
		"results":  len(res.Results),
	})
	return res, nil
}

func (c *Client) fetchOnce(ctx context.Context, q Query) (*Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(q.params()).
		Get(catalogPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}

	if !resp.IsSuccess() {
		se := &StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
		if se.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && secs > 0 {
				return nil, backoff.RetryAfter(secs)
			}
		}
		if !se.Temporary() {
			return nil, backoff.Permanent(se)
		}
		return nil, se
	}

	return decode(resp.Body())
}

func decode(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, backoff.Permanent(errors.New("catalog response is not valid JSON"))
	}
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return nil, backoff.Permanent(errors.New("catalog response has no results array"))
	}

	res := &Response{
		ResultSetSize: gjson.GetBytes(body, "resultSetSize").Int(),
	}
	for _, item := range results.Array() {
		res.Results = append(res.Results, model.RawEntry(item.Raw))
	}
	return res, nil
}
