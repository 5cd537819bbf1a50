// internal/adapters/apiclient/client.go
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ammerola/catalog-be/internal/core/domain"
	"github.com/ammerola/catalog-be/internal/core/ports"
)

var (
	// ErrUnexpectedStatus is returned for any non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMalformedResponse is returned when a 2xx body cannot be used.
	ErrMalformedResponse = errors.New("malformed response")
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 16 << 20

// Client talks to the catalog API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
}

// Statically assert that *Client implements the PageFetcher interface.
var _ ports.PageFetcher = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied first and left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New creates an API client rooted at baseURL
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("component", "apiclient")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Data       json.RawMessage    `json:"data"`
	Pagination *domain.Pagination `json:"pagination,omitempty"`
}

type productsData struct {
	Products *[]domain.Product `json:"products"`
	Sizes    []string          `json:"sizes"`
}

// FetchPage requests one page of the filtered listing
func (c *Client) FetchPage(ctx context.Context, filters domain.FilterState, page int) (*domain.Page, error) {
	q := filters.Values()
	q.Set("page", strconv.Itoa(page))

	env, err := c.get(ctx, "/api/products", q)
	if err != nil {
		return nil, err
	}

	var data productsData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode products: %v", ErrMalformedResponse, err)
	}
	if data.Products == nil {
		return nil, fmt.Errorf("%w: missing products", ErrMalformedResponse)
	}
	if env.Pagination == nil {
		return nil, fmt.Errorf("%w: missing pagination", ErrMalformedResponse)
	}
	if env.Pagination.Page != page {
		return nil, fmt.Errorf("%w: asked for page %d, got %d", ErrMalformedResponse, page, env.Pagination.Page)
	}
	if len(*data.Products) > domain.PageSize {
		return nil, fmt.Errorf("%w: page holds %d products", ErrMalformedResponse, len(*data.Products))
	}

	return &domain.Page{
		Items:       *data.Products,
		Page:        env.Pagination.Page,
		TotalCount:  env.Pagination.TotalCount,
		HasNextPage: env.Pagination.HasNextPage,
		Sizes:       data.Sizes,
	}, nil
}

// FilterOptions requests the catalog facets
func (c *Client) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	env, err := c.get(ctx, "/api/filters", nil)
	if err != nil {
		return nil, err
	}

	var opts domain.FilterOptions
	if err := json.Unmarshal(env.Data, &opts); err != nil {
		return nil, fmt.Errorf("%w: decode filters: %v", ErrMalformedResponse, err)
	}
	return &opts, nil
}

// Product requests a single product. A 404 maps to domain.ErrProductNotFound.
func (c *Client) Product(ctx context.Context, id int) (*domain.Product, error) {
	env, err := c.get(ctx, "/api/products/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}

	var product domain.Product
	if err := json.Unmarshal(env.Data, &product); err != nil {
		return nil, fmt.Errorf("%w: decode product: %v", ErrMalformedResponse, err)
	}
	return &product, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*envelope, error) {
	u := c.baseURL.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "request failed",
			slog.String("url", u.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	c.logger.DebugContext(ctx, "api response",
		slog.String("url", u.String()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/api/products/") {
		return nil, domain.ErrProductNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		if json.Unmarshal(body, &env) == nil && env.Error != "" {
			return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, env.Error)
		}
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: success=false: %s", ErrMalformedResponse, env.Error)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	return &env, nil
}
